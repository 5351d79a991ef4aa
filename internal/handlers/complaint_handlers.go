package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

type ComplaintHandler struct {
	db      *gorm.DB
	changes changeAnnouncer
	now     func() time.Time
}

func NewComplaintHandler(db *gorm.DB, events services.EventPublisher, logger *zap.Logger) *ComplaintHandler {
	return &ComplaintHandler{db: db, changes: changeAnnouncer{events: events, logger: logger}, now: time.Now}
}

type complaintRequest struct {
	StudentEmail string `json:"student_email" validate:"omitempty,email"`
	Title        string `json:"title" validate:"required,max=255"`
	Description  string `json:"description" validate:"required,max=5000"`
	Priority     string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// CreateComplaint files a complaint, linked to the student when the email is known
func (h *ComplaintHandler) CreateComplaint(c echo.Context) error {
	var req complaintRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	complaint := models.Complaint{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Priority:    req.Priority,
		Status:      models.ComplaintStatusPending,
	}
	if complaint.Priority == "" {
		complaint.Priority = "medium"
	}
	if req.StudentEmail != "" {
		var student models.Student
		err := h.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", req.StudentEmail).First(&student).Error
		if err == nil {
			complaint.StudentID = &student.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch student")
		}
	}

	if err := h.db.WithContext(ctx).Create(&complaint).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create complaint")
	}

	h.changes.announce(ctx, services.ResourceComplaints, services.ActionCreated, complaint.ID.String())
	return c.JSON(http.StatusCreated, complaint)
}

// ListComplaints returns complaints with their students, newest first
func (h *ComplaintHandler) ListComplaints(c echo.Context) error {
	query := h.db.WithContext(c.Request().Context()).Preload("Student").Order("created_at DESC")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if priority := c.QueryParam("priority"); priority != "" {
		query = query.Where("priority = ?", priority)
	}

	var complaints []models.Complaint
	if err := query.Find(&complaints).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch complaints")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": complaints})
}

type complaintStatusRequest struct {
	Status models.ComplaintStatus `json:"status" validate:"required,oneof=pending in_progress resolved"`
}

// UpdateComplaintStatus moves a complaint along its lifecycle
func (h *ComplaintHandler) UpdateComplaintStatus(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req complaintStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var complaint models.Complaint
	if err := h.db.WithContext(ctx).First(&complaint, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Complaint not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch complaint")
	}

	complaint.SetStatus(req.Status, h.now())
	if err := h.db.WithContext(ctx).Model(&complaint).Updates(map[string]interface{}{
		"status":      complaint.Status,
		"resolved_at": complaint.ResolvedAt,
	}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update complaint")
	}

	h.changes.announce(ctx, services.ResourceComplaints, services.ActionUpdated, complaint.ID.String())
	return c.JSON(http.StatusOK, complaint)
}

// DeleteComplaint removes a complaint
func (h *ComplaintHandler) DeleteComplaint(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	res := h.db.WithContext(c.Request().Context()).Delete(&models.Complaint{}, "id = ?", id)
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete complaint")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Complaint not found")
	}

	h.changes.announce(c.Request().Context(), services.ResourceComplaints, services.ActionDeleted, id.String())
	return c.NoContent(http.StatusNoContent)
}
