package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/fauter/cochera-admin/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ClientCookieName = "_sid"
	TabCookieName    = "_tab"

	clientCookieTTL = 365 * 24 * time.Hour
)

// Cookies hands out the two handles a browser carries: a persistent client id
// keying provider tokens and a browser-session tab id keying shadow sessions.
type Cookies struct {
	secure bool
}

func NewCookies(cfg config.Config) *Cookies {
	return &Cookies{secure: cfg.AuthCookieSecure}
}

// Ensure reads both handles, minting and setting the missing ones.
func (m *Cookies) Ensure(c *gin.Context) (clientID, tabID string) {
	clientID, ok := m.read(c, ClientCookieName)
	if !ok {
		clientID = uuid.NewString()
		m.set(c, ClientCookieName, clientID, int(clientCookieTTL.Seconds()))
	}
	tabID, ok = m.read(c, TabCookieName)
	if !ok {
		tabID = uuid.NewString()
		// MaxAge 0 leaves the cookie without an expiry, so it dies with the
		// browser session.
		m.set(c, TabCookieName, tabID, 0)
	}
	return clientID, tabID
}

func (m *Cookies) read(c *gin.Context, name string) (string, bool) {
	value, err := c.Cookie(name)
	if err != nil {
		return "", false
	}
	value = strings.TrimSpace(value)
	if _, err := uuid.Parse(value); err != nil {
		return "", false
	}
	return value, true
}

func (m *Cookies) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", m.secure, true)
}
