package server

import (
	"errors"
	"net/http"
	"strings"

	admindomain "github.com/fauter/cochera-admin/internal/admin/domain"
	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/authprovider"
	"github.com/fauter/cochera-admin/internal/building"
	"github.com/fauter/cochera-admin/internal/errtext"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	obslogger "github.com/fauter/cochera-admin/internal/observability/logger"
	pricingdomain "github.com/fauter/cochera-admin/internal/pricing/domain"
	"github.com/fauter/cochera-admin/internal/profile"
	"github.com/fauter/cochera-admin/internal/session"
	staffdomain "github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/fauter/cochera-admin/internal/surcharge"
	"github.com/fauter/cochera-admin/pkg/rls"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Localized string            `json:"localized,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Redirect  string            `json:"redirect,omitempty"`
	Empty     bool              `json:"empty,omitempty"`
	Incident  string            `json:"incident,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// scopeError carries a refused garage scope check and where to go instead.
type scopeError struct {
	redirect string
	empty    bool
	reason   string
}

func (e *scopeError) Error() string {
	return "garage_out_of_scope"
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			payload.Incident = ulid.Make().String()
			obslogger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("incident", payload.Incident),
				zap.String("path", c.Request.URL.Path),
				zap.Error(lastErr.Err),
			)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:      "internal_error",
			Message:   "internal server error",
			Localized: errtext.Fallback,
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:      "validation_error",
			Message:   "validation error",
			Localized: errtext.TranslateMessage(vErr.Errors[0].Code),
			Errors:    vErr.Errors,
		}
	}

	var sErr *scopeError
	if errors.As(err, &sErr) {
		return http.StatusForbidden, errorPayload{
			Type:      "garage_out_of_scope",
			Message:   sErr.reason,
			Localized: errtext.TranslateMessage("garage_out_of_scope"),
			Redirect:  sErr.redirect,
			Empty:     sErr.empty,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:      "validation_error",
			Message:   "validation error",
			Localized: errtext.TranslateMessage(code),
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	payload := func(typ, message string) errorPayload {
		return errorPayload{Type: typ, Message: message, Localized: errtext.Translate(err)}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, rls.ErrNoClaims),
		errors.Is(err, authprovider.ErrInvalidCredentials),
		errors.Is(err, authprovider.ErrInvalidToken),
		errors.Is(err, staffdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, payload("unauthorized", "unauthorized")
	case errors.Is(err, authprovider.ErrEmailNotConfirmed):
		return http.StatusUnauthorized, payload("email_not_confirmed", "email not confirmed")
	case errors.Is(err, admindomain.ErrNotMaster):
		return http.StatusForbidden, payload("not_master", "reserved to the master account")
	case isForbiddenError(err):
		return http.StatusForbidden, payload("forbidden", "forbidden")
	case errors.Is(err, pricingdomain.ErrCellBusy):
		return http.StatusConflict, payload("cell_busy", "cell write in progress")
	case errors.Is(err, ErrConflict),
		errors.Is(err, authprovider.ErrUserExists),
		errors.Is(err, staffdomain.ErrUsernameTaken),
		errors.Is(err, pricingdomain.ErrDuplicateCode):
		return http.StatusConflict, payload("conflict", "conflict")
	case errors.Is(err, authprovider.ErrRateLimited),
		errors.Is(err, staffdomain.ErrRateLimited):
		return http.StatusTooManyRequests, payload("rate_limited", "too many attempts")
	case isNotFoundError(err):
		return http.StatusNotFound, payload("not_found", "not found")
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, authprovider.ErrProviderUnavailable),
		errors.Is(err, session.ErrStoreDisposed):
		return http.StatusServiceUnavailable, payload("service_unavailable", "service unavailable")
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, payload("internal_error", "internal server error")
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:      "internal_error",
			Message:   "internal server error",
			Localized: errtext.Translate(err),
		}
	}
}

// classifyErrorForLog feeds the request logger the error type and code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "server", code
	}
	return "client", code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil && len(vErr.Errors) > 0 {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	authprovider.ErrWeakPassword,
	garagedomain.ErrInvalidName,
	garagedomain.ErrInvalidTaxID,
	garagedomain.ErrInvalidID,
	garagedomain.ErrInvalidOwner,
	building.ErrInvalidStructure,
	building.ErrInvalidCapacity,
	building.ErrInvalidGarage,
	building.ErrInvalidID,
	pricingdomain.ErrInvalidGarage,
	pricingdomain.ErrInvalidName,
	pricingdomain.ErrInvalidKind,
	pricingdomain.ErrInvalidDuration,
	pricingdomain.ErrInvalidAmount,
	pricingdomain.ErrInvalidPriceList,
	pricingdomain.ErrInvalidID,
	surcharge.ErrInvalidRule,
	surcharge.ErrInvalidMonth,
	surcharge.ErrInvalidGarage,
	staffdomain.ErrInvalidUsername,
	staffdomain.ErrInvalidSecret,
	staffdomain.ErrInvalidName,
	staffdomain.ErrInvalidRole,
	staffdomain.ErrUnknownSection,
	staffdomain.ErrForeignGarage,
	admindomain.ErrNotConfirmed,
	auditdomain.ErrInvalidAction,
	profile.ErrInvalidID,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, garagedomain.ErrForbidden),
		errors.Is(err, building.ErrForbidden),
		errors.Is(err, pricingdomain.ErrForbidden),
		errors.Is(err, surcharge.ErrForbidden),
		errors.Is(err, staffdomain.ErrForbidden),
		errors.Is(err, admindomain.ErrForbidden),
		errors.Is(err, admindomain.ErrResetNotAllowed),
		errors.Is(err, auditdomain.ErrForbidden):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, garagedomain.ErrNotFound),
		errors.Is(err, building.ErrNotFound),
		errors.Is(err, pricingdomain.ErrNotFound),
		errors.Is(err, staffdomain.ErrNotFound),
		errors.Is(err, profile.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "weak_password":
		return "password"
	case "unknown_section":
		return "sections"
	case "foreign_garage":
		return "allowed_garages"
	case "not_confirmed":
		return "confirmation"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "weak_password":
		return "password is too short"
	case "unknown_section":
		return "unknown section key"
	case "foreign_garage":
		return "garage does not belong to the owner"
	case "not_confirmed":
		return "confirmation does not match"
	default:
		return "invalid value"
	}
}
