package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func serve(e *echo.Echo, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestJSONErrorHandler(t *testing.T) {
	c := qt.New(t)

	e := echo.New()
	e.HTTPErrorHandler = JSONErrorHandler(zap.NewNop())
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "Student not found")
	})
	e.GET("/details", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "Validation failed", "details": map[string]string{"Email": "email"}})
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("database is on fire")
	})

	tests := []struct {
		path     string
		wantCode int
		wantBody map[string]interface{}
	}{{
		path:     "/missing",
		wantCode: http.StatusNotFound,
		wantBody: map[string]interface{}{"error": "Student not found", "success": false},
	}, {
		path:     "/details",
		wantCode: http.StatusBadRequest,
		wantBody: map[string]interface{}{
			"error":   "Validation failed",
			"success": false,
			"details": map[string]interface{}{"Email": "email"},
		},
	}, {
		path:     "/boom",
		wantCode: http.StatusInternalServerError,
		wantBody: map[string]interface{}{"error": "Something went wrong. Please try again later.", "success": false},
	}, {
		path:     "/nowhere",
		wantCode: http.StatusNotFound,
		wantBody: map[string]interface{}{"error": "Not Found", "success": false},
	}}

	for _, test := range tests {
		c.Run(test.path, func(c *qt.C) {
			rec, body := serve(e, httptest.NewRequest(http.MethodGet, test.path, nil))
			c.Assert(rec.Code, qt.Equals, test.wantCode)
			c.Assert(body, qt.DeepEquals, test.wantBody)
		})
	}
}

func TestRequireAdminBasicAuth(t *testing.T) {
	c := qt.New(t)

	e := echo.New()
	e.HTTPErrorHandler = JSONErrorHandler(zap.NewNop())
	e.GET("/api/me", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("userEmail").(string))
	}, RequireAdmin(AdminAuthConfig{User: "warden", Password: "s3cret"}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec, _ := serve(e, req)
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.SetBasicAuth("warden", "wrong")
	rec, _ = serve(e, req)
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.SetBasicAuth("warden", "s3cret")
	rec, _ = serve(e, req)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, "warden")
}

func TestRequireAdminWithoutCredentials(t *testing.T) {
	c := qt.New(t)

	e := echo.New()
	e.HTTPErrorHandler = JSONErrorHandler(zap.NewNop())
	e.GET("/api/me", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RequireAdmin(AdminAuthConfig{User: "admin"}))

	rec, body := serve(e, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusServiceUnavailable)
	c.Assert(body["error"], qt.Equals, "Admin authentication is not configured")
}
