package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SessionCookie is the name of the cookie holding the Firebase session
const SessionCookie = "session"

// AdminAuthConfig selects how admin routes are protected. Firebase wins when
// a client is set, otherwise the basic auth credentials are checked.
type AdminAuthConfig struct {
	Firebase *auth.Client
	User     string
	Password string
}

// RequireAdmin returns a middleware that only lets authenticated admins through
func RequireAdmin(cfg AdminAuthConfig) echo.MiddlewareFunc {
	if cfg.Firebase != nil {
		return RequireAuth(cfg.Firebase)
	}
	if cfg.Password == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "Admin authentication is not configured")
			}
		}
	}
	return echomw.BasicAuth(func(user, password string, c echo.Context) (bool, error) {
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.User)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
		if userOK && passOK {
			c.Set("userEmail", user)
			return true, nil
		}
		return false, nil
	})
}

// RequireAuth returns a middleware that accepts a Firebase ID token in the
// Authorization header or a Firebase session cookie
func RequireAuth(authClient *auth.Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			var (
				token *auth.Token
				err   error
			)
			if header := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
				token, err = authClient.VerifyIDToken(ctx, strings.TrimPrefix(header, "Bearer "))
			} else {
				cookie, cookieErr := c.Cookie(SessionCookie)
				if cookieErr != nil || cookie.Value == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "Missing credentials")
				}
				token, err = authClient.VerifySessionCookie(ctx, cookie.Value)
				if err != nil {
					// Invalid session, clear cookie
					c.SetCookie(&http.Cookie{
						Name:     SessionCookie,
						Value:    "",
						MaxAge:   -1,
						HttpOnly: true,
						Path:     "/",
					})
				}
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired credentials")
			}

			// Set user info in context for downstream handlers
			c.Set("userUID", token.UID)
			if email, ok := token.Claims["email"].(string); ok {
				c.Set("userEmail", email)
			}
			if name, ok := token.Claims["name"].(string); ok {
				c.Set("userName", name)
			}

			return next(c)
		}
	}
}
