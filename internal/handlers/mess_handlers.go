package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

type MessHandler struct {
	db      *gorm.DB
	changes changeAnnouncer
}

func NewMessHandler(db *gorm.DB, events services.EventPublisher, logger *zap.Logger) *MessHandler {
	return &MessHandler{db: db, changes: changeAnnouncer{events: events, logger: logger}}
}

// GetMenu returns the weekly menu from Monday to Sunday
func (h *MessHandler) GetMenu(c echo.Context) error {
	var menu []models.MessMenu
	if err := h.db.WithContext(c.Request().Context()).Order("day_order").Find(&menu).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch mess menu")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": menu})
}

type menuRequest struct {
	Breakfast string `json:"breakfast" validate:"max=255"`
	Lunch     string `json:"lunch" validate:"max=255"`
	Dinner    string `json:"dinner" validate:"max=255"`
}

// UpsertMenuDay replaces the meals of one weekday
func (h *MessHandler) UpsertMenuDay(c echo.Context) error {
	day := strings.ToLower(c.Param("day"))
	order := models.WeekdayOrder(day)
	if order == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown day "+c.Param("day"))
	}
	var req menuRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	entry := models.MessMenu{
		Day:       day,
		DayOrder:  order,
		Breakfast: req.Breakfast,
		Lunch:     req.Lunch,
		Dinner:    req.Dinner,
	}
	err := h.db.WithContext(c.Request().Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"breakfast", "lunch", "dinner", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save mess menu")
	}

	h.changes.announce(c.Request().Context(), services.ResourceMessMenu, services.ActionUpdated, day)
	return c.JSON(http.StatusOK, entry)
}
