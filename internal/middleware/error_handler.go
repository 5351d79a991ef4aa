package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// JSONErrorHandler creates an error handler for Echo that always answers with
// {error, success:false} plus details when the handler attached any
func JSONErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := echo.Map{"success": false}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code

			// Try to extract message from HTTPError
			switch msg := he.Message.(type) {
			case string:
				body["error"] = msg
			case echo.Map:
				for k, v := range msg {
					body[k] = v
				}
			}
		}

		if _, ok := body["error"]; !ok || body["error"] == "" {
			switch code {
			case http.StatusNotFound:
				body["error"] = "The resource you're looking for doesn't exist."
			case http.StatusForbidden:
				body["error"] = "You don't have permission to access this resource."
			case http.StatusUnauthorized:
				body["error"] = "Please log in to continue."
			case http.StatusBadRequest:
				body["error"] = "The request could not be processed."
			default:
				body["error"] = "Something went wrong. Please try again later."
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, body)
		}
		if writeErr != nil {
			logger.Error("Failed to write error response", zap.Error(writeErr))
		}
	}
}
