package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"hostel_app/internal/services"
)

var validate = validator.New()

// errorWithDetails builds an HTTP error rendered as {error, details, success:false}
func errorWithDetails(code int, message string, details interface{}) *echo.HTTPError {
	return echo.NewHTTPError(code, echo.Map{"error": message, "details": details})
}

// validationDetails maps each failing field to the rule it broke
func validationDetails(err error) interface{} {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	fields := make(map[string]string, len(ve))
	for _, fieldErr := range ve {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return fields
}

// bindAndValidate decodes the request body into dest and runs its validate tags
func bindAndValidate(c echo.Context, dest interface{}) error {
	if err := c.Bind(dest); err != nil {
		return errorWithDetails(http.StatusBadRequest, "Invalid request body", err.Error())
	}
	if err := validate.Struct(dest); err != nil {
		return errorWithDetails(http.StatusBadRequest, "Validation failed", validationDetails(err))
	}
	return nil
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

// pageParams reads page and page_size with the given default size
func pageParams(c echo.Context, defaultSize int) (page, size int) {
	page, size = 1, defaultSize
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(c.QueryParam("page_size")); err == nil && s > 0 && s <= 100 {
		size = s
	}
	return page, size
}

// Helper to safely get string from context
func getStringFromContext(c echo.Context, key string) string {
	val := c.Get(key)
	if val == nil {
		return ""
	}
	strVal, ok := val.(string)
	if !ok {
		return ""
	}
	return strVal
}

// changeAnnouncer publishes change events for a handler. Failures are logged and otherwise ignored.
type changeAnnouncer struct {
	events services.EventPublisher
	logger *zap.Logger
}

func (a changeAnnouncer) announce(ctx context.Context, resource, action, id string) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(ctx, services.NewChangeEvent(resource, action, id)); err != nil {
		a.logger.Warn("Failed to publish change event",
			zap.String("resource", resource),
			zap.String("action", action),
			zap.Error(err))
	}
}
