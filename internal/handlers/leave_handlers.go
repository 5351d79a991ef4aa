package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
	"hostel_app/internal/tasks"
)

// OTPValidity is how long a parent has to confirm a leave request
const OTPValidity = 15 * time.Minute

type LeaveHandler struct {
	db      *gorm.DB
	changes changeAnnouncer
	logger  *zap.Logger
	now     func() time.Time
	newOTP  func() (string, error)
}

func NewLeaveHandler(db *gorm.DB, events services.EventPublisher, logger *zap.Logger) *LeaveHandler {
	return &LeaveHandler{
		db:      db,
		changes: changeAnnouncer{events: events, logger: logger},
		logger:  logger,
		now:     time.Now,
		newOTP:  generateOTP,
	}
}

// generateOTP returns a uniformly random 6 digit code
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type leaveRequest struct {
	StudentName  string `json:"student_name" validate:"required,max=255"`
	StudentEmail string `json:"student_email" validate:"required,email"`
	StudentRoom  string `json:"student_room" validate:"required,max=50"`
	ParentEmail  string `json:"parent_email" validate:"required,email"`
	FromDate     string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate       string `json:"to_date" validate:"required,datetime=2006-01-02"`
	Reason       string `json:"reason" validate:"required,max=2000"`
}

// SubmitLeaveRequest stores the request and mails a verification code to the parent
func (h *LeaveHandler) SubmitLeaveRequest(c echo.Context) error {
	var req leaveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	from, _ := time.Parse(models.DateLayout, req.FromDate)
	to, _ := time.Parse(models.DateLayout, req.ToDate)
	if to.Before(from) {
		return errorWithDetails(http.StatusBadRequest, "Validation failed", map[string]string{"ToDate": "gtefield"})
	}

	code, err := h.newOTP()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate verification code")
	}

	ctx := c.Request().Context()
	leave := models.LeaveRequest{
		StudentName:  strings.TrimSpace(req.StudentName),
		StudentEmail: strings.TrimSpace(req.StudentEmail),
		StudentRoom:  req.StudentRoom,
		ParentEmail:  strings.TrimSpace(req.ParentEmail),
		FromDate:     models.DateOf(from),
		ToDate:       models.DateOf(to),
		Reason:       req.Reason,
		Status:       models.LeaveStatusPendingParent,
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.Student
		err := tx.Where("LOWER(email) = LOWER(?)", leave.StudentEmail).First(&student).Error
		switch {
		case err == nil:
			leave.StudentID = &student.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Create(&leave).Error; err != nil {
			return err
		}
		otp := models.OTPVerification{
			LeaveRequestID: leave.ID,
			ParentEmail:    leave.ParentEmail,
			OTPCode:        code,
			ExpiresAt:      h.now().Add(OTPValidity),
		}
		if err := tx.Create(&otp).Error; err != nil {
			return err
		}
		return tasks.ScheduleParentOTP(ctx, tx, &leave, code)
	})
	if err != nil {
		h.logger.Error("Failed to submit leave request", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to submit leave request")
	}

	h.changes.announce(ctx, services.ResourceLeaveRequests, services.ActionCreated, leave.ID.String())
	return c.JSON(http.StatusCreated, leave)
}

type verifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

// VerifyParentOTP confirms the parent's code and hands the request to the warden
func (h *LeaveHandler) VerifyParentOTP(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req verifyOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var leave models.LeaveRequest
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&leave, "id = ?", id).Error; err != nil {
			return err
		}
		if leave.Status != models.LeaveStatusPendingParent {
			return errLeaveNotAwaitingParent
		}

		var otp models.OTPVerification
		if err := tx.Where("leave_request_id = ? AND verified_at IS NULL", id).
			Order("created_at DESC").
			First(&otp).Error; err != nil {
			return err
		}
		now := h.now()
		if !otp.Usable(now) {
			return errOTPExpired
		}
		if subtle.ConstantTimeCompare([]byte(otp.OTPCode), []byte(req.OTP)) != 1 {
			return errOTPMismatch
		}

		if err := tx.Model(&otp).Update("verified_at", &now).Error; err != nil {
			return err
		}
		leave.Status = models.LeaveStatusPendingWarden
		return tx.Model(&leave).Update("status", leave.Status).Error
	})
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Leave request or verification code not found")
	case errors.Is(err, errLeaveNotAwaitingParent):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errOTPExpired), errors.Is(err, errOTPMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to verify code")
	}

	h.changes.announce(ctx, services.ResourceLeaveRequests, services.ActionUpdated, leave.ID.String())
	return c.JSON(http.StatusOK, leave)
}

var (
	errLeaveNotAwaitingParent = errors.New("leave request is not awaiting parent verification")
	errOTPExpired             = errors.New("verification code has expired")
	errOTPMismatch            = errors.New("verification code does not match")
)

// ListLeaveRequests returns leave requests, newest first, optionally by status
func (h *LeaveHandler) ListLeaveRequests(c echo.Context) error {
	query := h.db.WithContext(c.Request().Context()).Order("created_at DESC")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var leaves []models.LeaveRequest
	if err := query.Find(&leaves).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch leave requests")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": leaves})
}

// ApproveLeaveRequest approves the request and issues the gate pass token
func (h *LeaveHandler) ApproveLeaveRequest(c echo.Context) error {
	approver := getStringFromContext(c, "userEmail")
	if approver == "" {
		approver = "admin"
	}
	token := uuid.NewString()
	return h.decide(c, map[string]interface{}{
		"status":      models.LeaveStatusApproved,
		"approved_by": approver,
		"qr_code":     token,
	})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// RejectLeaveRequest rejects the request with a reason
func (h *LeaveHandler) RejectLeaveRequest(c echo.Context) error {
	var req rejectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return h.decide(c, map[string]interface{}{
		"status":          models.LeaveStatusRejected,
		"rejected_reason": req.Reason,
	})
}

func (h *LeaveHandler) decide(c echo.Context, updates map[string]interface{}) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var leave models.LeaveRequest
	if err := h.db.WithContext(ctx).First(&leave, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Leave request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch leave request")
	}
	if !leave.CanBeDecided() {
		return echo.NewHTTPError(http.StatusConflict, "Leave request was already decided")
	}

	// The status guard makes a concurrent decision lose instead of overwrite.
	res := h.db.WithContext(ctx).Model(&leave).
		Where("status IN ?", []models.LeaveStatus{models.LeaveStatusPendingParent, models.LeaveStatusPendingWarden}).
		Updates(updates)
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update leave request")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusConflict, "Leave request was already decided")
	}
	if err := h.db.WithContext(ctx).First(&leave, "id = ?", id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch leave request")
	}

	h.changes.announce(ctx, services.ResourceLeaveRequests, services.ActionUpdated, leave.ID.String())
	return c.JSON(http.StatusOK, leave)
}
