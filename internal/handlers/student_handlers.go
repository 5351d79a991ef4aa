package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

type StudentHandler struct {
	db      *gorm.DB
	rooms   *services.RoomService
	changes changeAnnouncer
}

func NewStudentHandler(db *gorm.DB, rooms *services.RoomService, events services.EventPublisher, logger *zap.Logger) *StudentHandler {
	return &StudentHandler{db: db, rooms: rooms, changes: changeAnnouncer{events: events, logger: logger}}
}

type studentRequest struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Email  string  `json:"email" validate:"required,email"`
	Phone  *string `json:"phone" validate:"omitempty,max=50"`
	Course string  `json:"course" validate:"omitempty,max=255"`
	Year   int     `json:"year" validate:"omitempty,min=1,max=10"`
}

func (r studentRequest) apply(s *models.Student) {
	s.Name = strings.TrimSpace(r.Name)
	s.Email = strings.TrimSpace(r.Email)
	s.Phone = r.Phone
	s.Course = r.Course
	if s.Course == "" {
		s.Course = models.PlaceholderCourse
	}
	s.Year = r.Year
	if s.Year == 0 {
		s.Year = 1
	}
}

// ListStudents returns students, optionally filtered by a name/email search and room
func (h *StudentHandler) ListStudents(c echo.Context) error {
	query := h.db.WithContext(c.Request().Context()).Model(&models.Student{})

	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if room := c.QueryParam("room"); room != "" {
		roomNumber, err := strconv.Atoi(room)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid room filter")
		}
		query = query.Where("room_number = ?", roomNumber)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count students")
	}

	page, size := pageParams(c, 50)
	var students []models.Student
	if err := query.Order("name").Limit(size).Offset((page - 1) * size).Find(&students).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch students")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data":      students,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

// GetStudent returns a student with their fees, newest due first
func (h *StudentHandler) GetStudent(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var student models.Student
	err = h.db.WithContext(c.Request().Context()).
		Preload("Fees", func(db *gorm.DB) *gorm.DB { return db.Order("due_date DESC") }).
		First(&student, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Student not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch student")
	}
	return c.JSON(http.StatusOK, student)
}

// CreateStudent registers a new student
func (h *StudentHandler) CreateStudent(c echo.Context) error {
	var req studentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var student models.Student
	req.apply(&student)

	err := h.db.WithContext(c.Request().Context()).Create(&student).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return echo.NewHTTPError(http.StatusConflict, "A student with this email already exists")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create student")
	}

	h.changes.announce(c.Request().Context(), services.ResourceStudents, services.ActionCreated, student.ID.String())
	return c.JSON(http.StatusCreated, student)
}

// UpdateStudent changes a student's profile. Room changes go through the room endpoints.
func (h *StudentHandler) UpdateStudent(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req studentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var student models.Student
	if err := h.db.WithContext(ctx).First(&student, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Student not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch student")
	}

	req.apply(&student)
	err = h.db.WithContext(ctx).Save(&student).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return echo.NewHTTPError(http.StatusConflict, "A student with this email already exists")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update student")
	}

	h.changes.announce(ctx, services.ResourceStudents, services.ActionUpdated, student.ID.String())
	return c.JSON(http.StatusOK, student)
}

// DeleteStudent frees the student's bed and removes them with their fees
func (h *StudentHandler) DeleteStudent(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if _, err := h.rooms.Release(ctx, id); err != nil && !errors.Is(err, services.ErrNoRoomAssigned) {
		return roomError(err)
	}

	res := h.db.WithContext(ctx).Delete(&models.Student{}, "id = ?", id)
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete student")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Student not found")
	}

	h.changes.announce(ctx, services.ResourceStudents, services.ActionDeleted, id.String())
	return c.NoContent(http.StatusNoContent)
}

type allocateRequest struct {
	RoomNumber int `json:"room_number" validate:"required,min=1"`
}

// AllocateRoom moves the student into a room
func (h *StudentHandler) AllocateRoom(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req allocateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	room, err := h.rooms.Allocate(ctx, id, req.RoomNumber)
	if err != nil {
		return roomError(err)
	}

	h.changes.announce(ctx, services.ResourceStudents, services.ActionUpdated, id.String())
	h.changes.announce(ctx, services.ResourceRooms, services.ActionUpdated, room.ID.String())
	return c.JSON(http.StatusOK, room)
}

// ReleaseRoom takes the student out of their room
func (h *StudentHandler) ReleaseRoom(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	room, err := h.rooms.Release(ctx, id)
	if err != nil {
		return roomError(err)
	}

	h.changes.announce(ctx, services.ResourceStudents, services.ActionUpdated, id.String())
	if room.ID != uuid.Nil {
		h.changes.announce(ctx, services.ResourceRooms, services.ActionUpdated, room.ID.String())
	}
	return c.NoContent(http.StatusNoContent)
}

func roomError(err error) error {
	switch {
	case errors.Is(err, services.ErrStudentNotFound), errors.Is(err, services.ErrRoomNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrRoomFull), errors.Is(err, models.ErrRoomInMaintenance),
		errors.Is(err, services.ErrRoomNotEmpty), errors.Is(err, services.ErrNoRoomAssigned):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Room operation failed")
	}
}
