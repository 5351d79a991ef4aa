package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

type RoomHandler struct {
	db      *gorm.DB
	rooms   *services.RoomService
	changes changeAnnouncer
}

func NewRoomHandler(db *gorm.DB, rooms *services.RoomService, events services.EventPublisher, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{db: db, rooms: rooms, changes: changeAnnouncer{events: events, logger: logger}}
}

type roomRequest struct {
	RoomNumber int               `json:"room_number" validate:"required,min=1"`
	Floor      *int              `json:"floor" validate:"omitempty,min=0"`
	Capacity   int               `json:"capacity" validate:"required,min=1,max=20"`
	Status     models.RoomStatus `json:"status" validate:"omitempty,oneof=available occupied maintenance"`
}

// ListRooms returns rooms ordered by number, optionally filtered by status
func (h *RoomHandler) ListRooms(c echo.Context) error {
	query := h.db.WithContext(c.Request().Context()).Order("room_number")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var rooms []models.Room
	if err := query.Find(&rooms).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch rooms")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rooms})
}

// CreateRoom adds an empty room
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	var req roomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	room := models.Room{
		RoomNumber: req.RoomNumber,
		Floor:      req.Floor,
		Capacity:   req.Capacity,
		Status:     models.RoomStatusAvailable,
	}
	if req.Status == models.RoomStatusMaintenance {
		room.Status = models.RoomStatusMaintenance
	}

	err := h.db.WithContext(c.Request().Context()).Create(&room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return echo.NewHTTPError(http.StatusConflict, "Room number already exists")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create room")
	}

	h.changes.announce(c.Request().Context(), services.ResourceRooms, services.ActionCreated, room.ID.String())
	return c.JSON(http.StatusCreated, room)
}

// UpdateRoom changes floor, capacity or maintenance state. The room number
// is fixed once students may reference it.
func (h *RoomHandler) UpdateRoom(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req roomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var room models.Room
	if err := h.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Room not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch room")
	}
	if req.RoomNumber != room.RoomNumber {
		return echo.NewHTTPError(http.StatusBadRequest, "Room number cannot be changed")
	}
	if req.Capacity < room.CurrentOccupancy {
		return echo.NewHTTPError(http.StatusConflict, "Capacity is below current occupancy")
	}

	room.Floor = req.Floor
	room.Capacity = req.Capacity
	switch {
	case req.Status == models.RoomStatusMaintenance:
		room.Status = models.RoomStatusMaintenance
	case room.CurrentOccupancy >= room.Capacity:
		room.Status = models.RoomStatusOccupied
	default:
		room.Status = models.RoomStatusAvailable
	}

	if err := h.db.WithContext(ctx).Save(&room).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update room")
	}

	h.changes.announce(ctx, services.ResourceRooms, services.ActionUpdated, room.ID.String())
	return c.JSON(http.StatusOK, room)
}

// DeleteRoom removes a room without occupants
func (h *RoomHandler) DeleteRoom(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.rooms.DeleteRoom(c.Request().Context(), id); err != nil {
		return roomError(err)
	}

	h.changes.announce(c.Request().Context(), services.ResourceRooms, services.ActionDeleted, id.String())
	return c.NoContent(http.StatusNoContent)
}
