package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

type MemberHandler struct {
	db      *gorm.DB
	changes changeAnnouncer
}

func NewMemberHandler(db *gorm.DB, events services.EventPublisher, logger *zap.Logger) *MemberHandler {
	return &MemberHandler{db: db, changes: changeAnnouncer{events: events, logger: logger}}
}

type memberRequest struct {
	Name  string            `json:"name" validate:"required,max=255"`
	Email *string           `json:"email" validate:"omitempty,email"`
	Role  models.MemberRole `json:"role" validate:"required,oneof=admin staff manager warden"`
}

// ListMembers returns staff members by name
func (h *MemberHandler) ListMembers(c echo.Context) error {
	var members []models.Member
	if err := h.db.WithContext(c.Request().Context()).Order("name").Find(&members).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch members")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": members})
}

// StoreMember handles the creation of a new member
func (h *MemberHandler) StoreMember(c echo.Context) error {
	var req memberRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	member := models.Member{
		Name:  strings.TrimSpace(req.Name),
		Email: req.Email,
		Role:  req.Role,
	}
	if err := h.db.WithContext(c.Request().Context()).Create(&member).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create member")
	}

	h.changes.announce(c.Request().Context(), services.ResourceMembers, services.ActionCreated, member.ID.String())
	return c.JSON(http.StatusCreated, member)
}

// UpdateMember handles updating an existing member
func (h *MemberHandler) UpdateMember(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req memberRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var member models.Member
	if err := h.db.WithContext(ctx).First(&member, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Member not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch member")
	}

	member.Name = strings.TrimSpace(req.Name)
	member.Email = req.Email
	member.Role = req.Role
	if err := h.db.WithContext(ctx).Save(&member).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update member")
	}

	h.changes.announce(ctx, services.ResourceMembers, services.ActionUpdated, member.ID.String())
	return c.JSON(http.StatusOK, member)
}

// DeleteMember handles deleting a member
func (h *MemberHandler) DeleteMember(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	res := h.db.WithContext(c.Request().Context()).Delete(&models.Member{}, "id = ?", id)
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete member")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Member not found")
	}

	h.changes.announce(c.Request().Context(), services.ResourceMembers, services.ActionDeleted, id.String())
	return c.NoContent(http.StatusNoContent)
}
