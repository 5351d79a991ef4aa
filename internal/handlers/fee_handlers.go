package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

type FeeHandler struct {
	db      *gorm.DB
	changes changeAnnouncer
	now     func() time.Time
}

func NewFeeHandler(db *gorm.DB, events services.EventPublisher, logger *zap.Logger) *FeeHandler {
	return &FeeHandler{db: db, changes: changeAnnouncer{events: events, logger: logger}, now: time.Now}
}

// ListFees returns fees with their students, newest first, filtered by status, student and type
func (h *FeeHandler) ListFees(c echo.Context) error {
	query := h.db.WithContext(c.Request().Context()).Model(&models.Fee{})

	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if studentID := c.QueryParam("student_id"); studentID != "" {
		id, err := uuid.Parse(studentID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid student_id filter")
		}
		query = query.Where("student_id = ?", id)
	}
	if feeType := c.QueryParam("fee_type"); feeType != "" {
		query = query.Where("fee_type = ?", feeType)
	}

	// Get total count for pagination
	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count fees")
	}

	page, size := pageParams(c, 20)
	var fees []models.Fee
	if err := query.Preload("Student").
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&fees).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch fees")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data":      fees,
		"total":     totalCount,
		"page":      page,
		"page_size": size,
	})
}

// FeeStats are the totals shown above the fee list
type FeeStats struct {
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalPending decimal.Decimal `json:"total_pending"`
}

// GetFeeStats sums all fees and the paid ones. Pending is whatever is not paid yet.
func (h *FeeHandler) GetFeeStats(c echo.Context) error {
	var stats FeeStats
	err := h.db.WithContext(c.Request().Context()).Model(&models.Fee{}).
		Select("COALESCE(SUM(amount), 0) AS total_amount, COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS total_paid", models.FeeStatusPaid).
		Scan(&stats).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to compute fee stats")
	}
	stats.TotalPending = stats.TotalAmount.Sub(stats.TotalPaid)
	return c.JSON(http.StatusOK, stats)
}

type feeRequest struct {
	StudentID uuid.UUID        `json:"student_id" validate:"required"`
	Amount    decimal.Decimal  `json:"amount"`
	FeeType   string           `json:"fee_type" validate:"required,max=100"`
	DueDate   string           `json:"due_date" validate:"required,datetime=2006-01-02"`
	Status    models.FeeStatus `json:"status" validate:"omitempty,oneof=pending paid overdue"`
}

// CreateFee records a fee by hand, e.g. a cash payment or a one-off charge
func (h *FeeHandler) CreateFee(c echo.Context) error {
	var req feeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if !req.Amount.IsPositive() {
		return errorWithDetails(http.StatusBadRequest, "Validation failed", map[string]string{"Amount": "gt"})
	}
	due, err := time.Parse(models.DateLayout, req.DueDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid due_date")
	}

	ctx := c.Request().Context()
	var student models.Student
	if err := h.db.WithContext(ctx).First(&student, "id = ?", req.StudentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Student not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch student")
	}

	fee := models.Fee{
		StudentID: student.ID,
		Amount:    req.Amount.Round(2),
		FeeType:   req.FeeType,
		DueDate:   models.DateOf(due),
		Status:    models.FeeStatusPending,
	}
	switch req.Status {
	case models.FeeStatusPaid:
		fee.MarkPaid(h.now())
	case models.FeeStatusOverdue:
		fee.Status = models.FeeStatusOverdue
	}

	if err := h.db.WithContext(ctx).Create(&fee).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create fee")
	}
	fee.Student = &student

	h.changes.announce(ctx, services.ResourceFees, services.ActionCreated, fee.ID.String())
	return c.JSON(http.StatusCreated, fee)
}

// MarkFeePaid settles a pending or overdue fee today
func (h *FeeHandler) MarkFeePaid(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var fee models.Fee
	if err := h.db.WithContext(ctx).Preload("Student").First(&fee, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Fee not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch fee")
	}
	if fee.Status == models.FeeStatusPaid {
		return echo.NewHTTPError(http.StatusConflict, "Fee is already paid")
	}

	fee.MarkPaid(h.now())
	if err := h.db.WithContext(ctx).Model(&fee).Updates(map[string]interface{}{
		"status":    fee.Status,
		"paid_date": fee.PaidDate,
	}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update fee")
	}

	h.changes.announce(ctx, services.ResourceFees, services.ActionUpdated, fee.ID.String())
	return c.JSON(http.StatusOK, fee)
}

// DeleteFee removes a fee record
func (h *FeeHandler) DeleteFee(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	res := h.db.WithContext(c.Request().Context()).Delete(&models.Fee{}, "id = ?", id)
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete fee")
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Fee not found")
	}

	h.changes.announce(c.Request().Context(), services.ResourceFees, services.ActionDeleted, id.String())
	return c.NoContent(http.StatusNoContent)
}

// MessBill is one month of a student's mess fees
type MessBill struct {
	Month  string          `json:"month"`
	Total  decimal.Decimal `json:"total"`
	Paid   decimal.Decimal `json:"paid"`
	Status string          `json:"status"`
	Fees   []models.Fee    `json:"fees"`
}

// GetMessBills groups a student's mess fees by due month, latest month first
func (h *FeeHandler) GetMessBills(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var fees []models.Fee
	if err := h.db.WithContext(c.Request().Context()).
		Where("student_id = ? AND fee_type = ?", id, models.MessFeeType).
		Order("due_date DESC").
		Find(&fees).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch mess bills")
	}

	return c.JSON(http.StatusOK, echo.Map{"data": groupMessBills(fees)})
}

// groupMessBills expects fees ordered by due date
func groupMessBills(fees []models.Fee) []MessBill {
	bills := []MessBill{}
	for _, fee := range fees {
		month := time.Time(fee.DueDate).Format("2006-01")
		if len(bills) == 0 || bills[len(bills)-1].Month != month {
			bills = append(bills, MessBill{Month: month, Status: string(models.FeeStatusPaid)})
		}
		bill := &bills[len(bills)-1]
		bill.Fees = append(bill.Fees, fee)
		bill.Total = bill.Total.Add(fee.Amount)
		if fee.Status == models.FeeStatusPaid {
			bill.Paid = bill.Paid.Add(fee.Amount)
		} else if bill.Status != string(models.FeeStatusOverdue) {
			bill.Status = string(fee.Status)
		}
	}
	return bills
}
