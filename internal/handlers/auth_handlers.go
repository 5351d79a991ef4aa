package handlers

import (
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"hostel_app/internal/middleware"
)

// sessionLifetime is how long an admin session cookie stays valid
const sessionLifetime = time.Hour * 24 * 5

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authClient   *auth.Client
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler. authClient may be nil when Firebase is not configured.
func NewAuthHandler(authClient *auth.Client, secureCookie bool) *AuthHandler {
	return &AuthHandler{authClient: authClient, secureCookie: secureCookie}
}

// HandleLogin verifies the Firebase ID token and creates a session cookie
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	if h.authClient == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Firebase not initialized")
	}

	// Get ID Token from Authorization Header
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
	}

	// Verify ID Token
	if _, err := h.authClient.VerifyIDToken(c.Request().Context(), tokenString); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	cookieValue, err := h.authClient.SessionCookie(c.Request().Context(), tokenString, sessionLifetime)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create session")
	}

	// Set HTTP-Only Cookie
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    cookieValue,
		MaxAge:   int(sessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, echo.Map{"status": "success"})
}

// HandleLogout clears the session cookie
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})

	return c.JSON(http.StatusOK, echo.Map{"status": "logged out"})
}

// Me returns who the admin middleware authenticated
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"uid":   getStringFromContext(c, "userUID"),
		"email": getStringFromContext(c, "userEmail"),
		"name":  getStringFromContext(c, "userName"),
	})
}
