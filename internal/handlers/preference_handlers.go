package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
)

type StudentPreferenceHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStudentPreferenceHandler(db *gorm.DB, logger *zap.Logger) *StudentPreferenceHandler {
	return &StudentPreferenceHandler{db: db, logger: logger}
}

// GetStudentPreference returns the student's notification preference, or the default when none is stored
func (h *StudentPreferenceHandler) GetStudentPreference(c echo.Context) error {
	studentID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var student models.Student
	if err := h.db.WithContext(ctx).First(&student, "id = ?", studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Student not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch student")
	}

	var pref models.StudentNotifPreference
	err = h.db.WithContext(ctx).Where("student_id = ?", studentID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pref = models.DefaultNotifPreference(studentID)
	} else if err != nil {
		h.logger.Error("DB error fetching preference", zap.String("student_id", studentID.String()), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Error fetching preference")
	}

	return c.JSON(http.StatusOK, pref)
}

type preferenceRequest struct {
	Channel            models.NotificationChannel `json:"channel" validate:"required,oneof=email whatsapp none"`
	WhatsappTargetType string                     `json:"whatsapp_target_type" validate:"omitempty,oneof=personal group"`
	WhatsappGroupID    string                     `json:"whatsapp_group_id" validate:"required_if=WhatsappTargetType group,max=100"`
}

// UpdateStudentPreference upserts the preference
func (h *StudentPreferenceHandler) UpdateStudentPreference(c echo.Context) error {
	studentID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req preferenceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	var count int64
	if err := h.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", studentID).Count(&count).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Database error")
	}
	if count == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Student not found")
	}

	// Upsert preference
	var pref models.StudentNotifPreference
	err = h.db.WithContext(ctx).Where("student_id = ?", studentID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pref = models.StudentNotifPreference{StudentID: studentID}
	} else if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Database error")
	}

	pref.Channel = req.Channel
	pref.WhatsappTargetType = req.WhatsappTargetType
	if pref.WhatsappTargetType == "" {
		pref.WhatsappTargetType = models.WhatsappTargetTypePersonal
	}
	pref.WhatsappGroupID = req.WhatsappGroupID

	if err := h.db.WithContext(ctx).Save(&pref).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save preference")
	}
	return c.JSON(http.StatusOK, pref)
}
