// Package authprovider talks to the hosted auth provider: password sign-in,
// token refresh, sign-up and sign-out.
package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fauter/cochera-admin/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrEmailNotConfirmed   = errors.New("email_not_confirmed")
	ErrUserExists          = errors.New("user_exists")
	ErrRateLimited         = errors.New("rate_limited")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrWeakPassword        = errors.New("weak_password")
)

// Token is a provider session.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       *AccessClaims
}

// AccessClaims are the claims the provider puts in its access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

type Client struct {
	baseURL   string
	apiKey    string
	jwtSecret []byte
	http      *http.Client
	oauth     *oauth2.Config
	log       *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.Auth.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(cfg.Auth.BaseURL, "/")
	c := &Client{
		baseURL:   base,
		apiKey:    cfg.Auth.APIKey,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		log:       log.Named("authprovider"),
	}
	c.http = &http.Client{
		Timeout:   timeout,
		Transport: &apiKeyTransport{key: c.apiKey, base: http.DefaultTransport},
	}
	c.oauth = &oauth2.Config{
		ClientID: cfg.AppName,
		Endpoint: oauth2.Endpoint{
			TokenURL:  base + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if len(c.jwtSecret) == 0 {
		c.log.Warn("AUTH_JWT_SECRET not set, access tokens are decoded without verification")
	}
	return c
}

// apiKeyTransport adds the project key every provider endpoint expects.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("apikey", t.key)
	return t.base.RoundTrip(clone)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// SignInWithPassword runs the password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	tok, err := c.oauth.PasswordCredentialsToken(c.oauthContext(ctx), email, password)
	if err != nil {
		return nil, c.mapTokenError(err)
	}
	return c.fromOAuth(tok)
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, c.mapTokenError(err)
	}
	return c.fromOAuth(tok)
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type signUpResponse struct {
	ID           string `json:"id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *struct {
		ID string `json:"id"`
	} `json:"user"`
}

// SignUpResult carries the new user id and, when the provider confirms
// accounts automatically, a session.
type SignUpResult struct {
	UserID string
	Token  *Token
}

// SignUp registers a new account. The provider speaks plain JSON here, there
// is no OAuth2 flow for account creation.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*SignUpResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	body, err := json.Marshal(signUpRequest{
		Email:    email,
		Password: password,
		Data:     map[string]any{"full_name": strings.TrimSpace(fullName)},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signup", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return nil, mapStatus(resp.StatusCode, raw)
	}

	var out signUpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	result := &SignUpResult{UserID: out.ID}
	if out.User != nil && out.User.ID != "" {
		result.UserID = out.User.ID
	}
	if out.AccessToken != "" {
		tok, err := c.fromOAuth(&oauth2.Token{
			AccessToken:  out.AccessToken,
			RefreshToken: out.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
		})
		if err != nil {
			return nil, err
		}
		result.Token = tok
		if result.UserID == "" {
			result.UserID = tok.Claims.Subject
		}
	}
	return result, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	httpClient := oauth2.NewClient(c.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	// An already revoked session answers 401, which is the desired end state.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: logout status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

// ParseAccessToken verifies an access token with the project secret. Without
// a secret the claims are decoded unverified, which is only acceptable in
// development.
func (c *Client) ParseAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if len(c.jwtSecret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return claims, nil
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Client) fromOAuth(tok *oauth2.Token) (*Token, error) {
	claims, err := c.ParseAccessToken(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	expires := tok.Expiry
	if claims.ExpiresAt != nil && (expires.IsZero() || claims.ExpiresAt.Time.Before(expires)) {
		expires = claims.ExpiresAt.Time
	}
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expires.UTC(),
		Claims:       claims,
	}, nil
}

func (c *Client) mapTokenError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		status := 0
		if retrieve.Response != nil {
			status = retrieve.Response.StatusCode
		}
		mapped := mapStatus(status, retrieve.Body)
		if retrieve.ErrorCode == "invalid_grant" && errors.Is(mapped, ErrProviderUnavailable) {
			return ErrInvalidCredentials
		}
		return mapped
	}
	c.log.Warn("auth provider unreachable", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

type providerError struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// mapStatus turns a provider error response into one of the package errors.
func mapStatus(status int, body []byte) error {
	var pe providerError
	_ = json.Unmarshal(body, &pe)
	text := strings.ToLower(strings.Join([]string{pe.Error, pe.ErrorCode, pe.ErrorDescription, pe.Msg, pe.Message}, " "))

	switch {
	case status == http.StatusTooManyRequests || strings.Contains(text, "rate limit"):
		return ErrRateLimited
	case strings.Contains(text, "email not confirmed") || strings.Contains(text, "email_not_confirmed"):
		return ErrEmailNotConfirmed
	case strings.Contains(text, "already registered") || strings.Contains(text, "user_already_exists"):
		return ErrUserExists
	case strings.Contains(text, "weak_password") || strings.Contains(text, "password should be"):
		return ErrWeakPassword
	case strings.Contains(text, "invalid login") || strings.Contains(text, "invalid_credentials") || strings.Contains(text, "invalid_grant"):
		return ErrInvalidCredentials
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return ErrInvalidCredentials
	case status == http.StatusUnprocessableEntity:
		return ErrUserExists
	}
	return fmt.Errorf("%w: status %d", ErrProviderUnavailable, status)
}
