package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"hostel_app/internal/models"
)

// Checkout session metadata keys. The verifier reads back what the initiator wrote.
const (
	MetaStudentEmail = "student_email"
	MetaStudentName  = "student_name"
	MetaFeeAmount    = "fee_amount"
	MetaCurrency     = "currency"
	MetaFeeType      = "fee_type"
	MetaMonth        = "month"
)

const (
	defaultProductName = "Student Fee Payment"
	sessionPaid        = "paid"

	MessagePaymentRecorded = "Payment verified and fee recorded"
	MessageAlreadyRecorded = "Payment already recorded"
)

var validate = validator.New()

// SettlementStore is the persistence the verifier needs. Finders return nil, nil when nothing matches.
type SettlementStore interface {
	FindStudentByEmail(ctx context.Context, email string) (*models.Student, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	FindFeeBySession(ctx context.Context, sessionID string) (*models.Fee, error)
	FindRecentPaidFee(ctx context.Context, studentID uuid.UUID, amount decimal.Decimal, since time.Time) (*models.Fee, error)
	// InsertFee reports false when another fee already holds the payment session id
	InsertFee(ctx context.Context, fee *models.Fee) (bool, error)
	GetFee(ctx context.Context, id uuid.UUID) (*models.Fee, error)
}

// ReceiptNotifier is told about every newly recorded payment
type ReceiptNotifier interface {
	PaymentRecorded(ctx context.Context, fee *models.Fee, student *models.Student) error
}

// PaymentConfig holds the settlement defaults
type PaymentConfig struct {
	DefaultCurrency  string
	DefaultFeeType   string
	Origin           string
	DuplicateWindow  time.Duration
	ConsistencyDelay time.Duration
}

// PaymentService opens checkout sessions and turns paid sessions into fee records
type PaymentService struct {
	store    SettlementStore
	gateway  PaymentGateway
	locker   Locker
	events   EventPublisher
	notifier ReceiptNotifier
	cfg      PaymentConfig
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewPaymentService(store SettlementStore, gateway PaymentGateway, locker Locker, events EventPublisher, cfg PaymentConfig, logger *zap.Logger) *PaymentService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "inr"
	}
	if cfg.DefaultFeeType == "" {
		cfg.DefaultFeeType = "Monthly Rent"
	}
	return &PaymentService{
		store:   store,
		gateway: gateway,
		locker:  locker,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// SetNotifier attaches the receipt notifier. Without one no receipts are sent.
func (s *PaymentService) SetNotifier(n ReceiptNotifier) {
	s.notifier = n
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// MinorUnits converts a major unit amount to the processor's minor units, rounding half away from zero
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreatePaymentRequest is the payer's request to open a checkout session
type CreatePaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Email       string          `json:"email" validate:"required,email"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Currency    string          `json:"currency" validate:"omitempty,alpha,len=3"`
	Month       string          `json:"month" validate:"omitempty,datetime=2006-01"`
	FeeType     string          `json:"feeType"`
}

// CreatePaymentResult is where the payer has to go to pay
type CreatePaymentResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// CreatePayment validates the request and opens a checkout session. Nothing is written locally.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest, origin string) (*CreatePaymentResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, NewPaymentError(CodeInvalidRequest, "Invalid payment request", err)
	}
	if !req.Amount.IsPositive() {
		return nil, NewPaymentError(CodeInvalidRequest, "Amount must be greater than zero", nil)
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	feeType := req.FeeType
	if feeType == "" {
		feeType = s.cfg.DefaultFeeType
	}
	origin = strings.TrimRight(origin, "/")
	if origin == "" {
		origin = s.cfg.Origin
	}

	customerID, err := s.gateway.FindCustomerIDByEmail(ctx, req.Email)
	if err != nil {
		return nil, wrapGatewayError(err, "failed to look up customer")
	}

	productName := req.Description
	if productName == "" {
		productName = defaultProductName
	}
	payer := req.Name
	if payer == "" {
		payer = "student"
	}

	checkout := CheckoutRequest{
		CustomerID:         customerID,
		CustomerEmail:      req.Email,
		Currency:           currency,
		ProductName:        productName,
		ProductDescription: "Fee payment for " + payer,
		UnitAmount:         MinorUnits(req.Amount),
		SuccessURL:         origin + "/?payment=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          origin + "/?payment=cancelled",
		Metadata: map[string]string{
			MetaStudentEmail: req.Email,
			MetaStudentName:  req.Name,
			MetaFeeAmount:    req.Amount.String(),
			MetaCurrency:     currency,
			MetaFeeType:      feeType,
			MetaMonth:        req.Month,
		},
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, checkout)
	if err != nil {
		return nil, wrapGatewayError(err, "failed to create checkout session")
	}

	s.logger.Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("email", req.Email),
		zap.Int64("unit_amount", checkout.UnitAmount),
		zap.String("currency", currency))

	return &CreatePaymentResult{URL: sess.URL, SessionID: sess.ID}, nil
}

// settlement is what a paid session says should be recorded
type settlement struct {
	sessionID string
	email     string
	name      string
	amount    decimal.Decimal
	feeType   string
	dueDate   datatypes.Date
}

func (s *PaymentService) settlementFromSession(sess *CheckoutSession) (*settlement, error) {
	// Only the metadata names the payer; the processor's customer email may belong to someone else.
	email := strings.TrimSpace(sess.Metadata[MetaStudentEmail])
	if email == "" {
		s.logger.Warn("Paid session carries no student email",
			zap.String("session_id", sess.ID),
			zap.String("customer_email", sess.CustomerEmail))
		return nil, NewPaymentError(CodeMissingEmail, "Student email not found in payment session", nil)
	}

	amount, err := decimal.NewFromString(sess.Metadata[MetaFeeAmount])
	if err != nil || !amount.IsPositive() {
		amount = decimal.New(sess.AmountTotal, -2)
	}

	feeType := sess.Metadata[MetaFeeType]
	if feeType == "" {
		feeType = s.cfg.DefaultFeeType
	}

	dueDate := models.DateOf(s.now())
	if month := sess.Metadata[MetaMonth]; month != "" {
		dueDate, err = models.FirstOfMonth(month)
		if err != nil {
			return nil, NewPaymentError(CodeInvalidMetadata, "Invalid billing month "+month, err)
		}
	}

	return &settlement{
		sessionID: sess.ID,
		email:     email,
		name:      strings.TrimSpace(sess.Metadata[MetaStudentName]),
		amount:    amount.Round(2),
		feeType:   feeType,
		dueDate:   dueDate,
	}, nil
}

// VerifyResult is the fee a paid session resolved to
type VerifyResult struct {
	Fee       *models.Fee
	Student   *models.Student
	Message   string
	Duplicate bool
}

// VerifyPayment confirms a checkout session was paid and records exactly one fee for it.
// Verifications for the same payer are serialized through the locker.
func (s *PaymentService) VerifyPayment(ctx context.Context, sessionID string) (*VerifyResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, NewPaymentError(CodeInvalidRequest, "Session ID is required", nil)
	}

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, wrapGatewayError(err, "failed to retrieve checkout session")
	}
	return s.Settle(ctx, sess)
}

// Settle records the fee for an already retrieved checkout session
func (s *PaymentService) Settle(ctx context.Context, sess *CheckoutSession) (*VerifyResult, error) {
	if sess.PaymentStatus != sessionPaid {
		return nil, NewPaymentError(CodePaymentNotCompleted, "Payment not completed. Status: "+sess.PaymentStatus, nil)
	}

	st, err := s.settlementFromSession(sess)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, "verify:"+strings.ToLower(st.email))
	if err != nil {
		return nil, NewPaymentError(CodeStoreFailed, "failed to serialize verification", err)
	}
	result, err := s.record(ctx, st)
	unlock()
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		s.confirmVisible(ctx, result.Fee.ID)
	}
	return result, nil
}

func (s *PaymentService) record(ctx context.Context, st *settlement) (*VerifyResult, error) {
	existing, err := s.store.FindFeeBySession(ctx, st.sessionID)
	if err != nil {
		return nil, NewPaymentError(CodeStoreFailed, "failed to look up fee", err)
	}
	if existing != nil {
		s.logger.Info("Session already settled",
			zap.String("session_id", st.sessionID),
			zap.String("fee_id", existing.ID.String()))
		return &VerifyResult{Fee: existing, Student: existing.Student, Message: MessageAlreadyRecorded, Duplicate: true}, nil
	}

	student, created, err := s.resolveStudent(ctx, st)
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-s.cfg.DuplicateWindow)
	recent, err := s.store.FindRecentPaidFee(ctx, student.ID, st.amount, since)
	if err != nil {
		return nil, NewPaymentError(CodeStoreFailed, "failed to check recent payments", err)
	}
	if recent != nil {
		s.logger.Warn("Paid fee with same amount recorded within duplicate window, reusing it",
			zap.String("session_id", st.sessionID),
			zap.String("fee_id", recent.ID.String()),
			zap.String("student_id", student.ID.String()),
			zap.Duration("window", s.cfg.DuplicateWindow))
		return &VerifyResult{Fee: recent, Student: student, Message: MessageAlreadyRecorded, Duplicate: true}, nil
	}

	sessionID := st.sessionID
	fee := &models.Fee{
		StudentID:        student.ID,
		Amount:           st.amount,
		FeeType:          st.feeType,
		DueDate:          st.dueDate,
		PaymentSessionID: &sessionID,
	}
	fee.MarkPaid(s.now())

	inserted, err := s.store.InsertFee(ctx, fee)
	if err != nil {
		return nil, NewPaymentError(CodeStoreFailed, "failed to record fee", err)
	}
	if !inserted {
		winner, err := s.store.FindFeeBySession(ctx, st.sessionID)
		if err != nil || winner == nil {
			return nil, NewPaymentError(CodeStoreFailed, "fee recorded concurrently but could not be read back", err)
		}
		return &VerifyResult{Fee: winner, Student: student, Message: MessageAlreadyRecorded, Duplicate: true}, nil
	}
	fee.Student = student

	s.logger.Info("Fee recorded",
		zap.String("session_id", st.sessionID),
		zap.String("fee_id", fee.ID.String()),
		zap.String("student_id", student.ID.String()),
		zap.String("amount", fee.Amount.String()))

	if created {
		s.publish(ctx, NewChangeEvent(ResourceStudents, ActionCreated, student.ID.String()))
	}
	s.publish(ctx, NewChangeEvent(ResourceFees, ActionCreated, fee.ID.String()))

	if s.notifier != nil {
		if err := s.notifier.PaymentRecorded(ctx, fee, student); err != nil {
			s.logger.Error("Failed to schedule payment receipt", zap.String("fee_id", fee.ID.String()), zap.Error(err))
		}
	}

	return &VerifyResult{Fee: fee, Student: student, Message: MessagePaymentRecorded}, nil
}

func (s *PaymentService) resolveStudent(ctx context.Context, st *settlement) (*models.Student, bool, error) {
	student, err := s.store.FindStudentByEmail(ctx, st.email)
	if err != nil {
		return nil, false, NewPaymentError(CodeStoreFailed, "failed to look up student", err)
	}
	if student != nil {
		return student, false, nil
	}
	if st.name == "" {
		return nil, false, NewPaymentError(CodeStudentUnresolvable,
			"Student not found and no name provided to create one", nil)
	}

	student = &models.Student{
		Name:   st.name,
		Email:  st.email,
		Course: models.PlaceholderCourse,
		Year:   1,
	}
	if err := s.store.CreateStudent(ctx, student); err != nil {
		// Another instance may have registered the same email first.
		existing, findErr := s.store.FindStudentByEmail(ctx, st.email)
		if findErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, NewPaymentError(CodeStoreFailed, "failed to create student", err)
	}

	s.logger.Info("Student created from payment",
		zap.String("student_id", student.ID.String()),
		zap.String("email", student.Email))
	return student, true, nil
}

// confirmVisible re-reads a freshly written fee after the consistency delay. Failures are only logged.
func (s *PaymentService) confirmVisible(ctx context.Context, id uuid.UUID) {
	s.sleep(ctx, s.cfg.ConsistencyDelay)
	fee, err := s.store.GetFee(ctx, id)
	if err != nil || fee == nil {
		s.logger.Warn("Recorded fee not yet visible", zap.String("fee_id", id.String()), zap.Error(err))
		return
	}
	s.logger.Debug("Recorded fee visible", zap.String("fee_id", id.String()), zap.String("status", string(fee.Status)))
}

func (s *PaymentService) publish(ctx context.Context, event ChangeEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish change event",
			zap.String("resource", event.Resource),
			zap.String("id", event.ID),
			zap.Error(err))
	}
}

func wrapGatewayError(err error, message string) error {
	if PaymentErrorCode(err) != "" {
		return err
	}
	return NewPaymentError(CodeAPICallFailed, message, err)
}

// FeeRecord is the wire shape of a settled fee
type FeeRecord struct {
	ID           uuid.UUID   `json:"id"`
	Amount       json.Number `json:"amount"`
	FeeType      string      `json:"fee_type"`
	Status       string      `json:"status"`
	DueDate      string      `json:"due_date"`
	PaidDate     *string     `json:"paid_date"`
	StudentID    uuid.UUID   `json:"student_id"`
	StudentName  string      `json:"student_name"`
	StudentEmail string      `json:"student_email"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewFeeRecord flattens a fee and its student
func NewFeeRecord(fee *models.Fee, student *models.Student) FeeRecord {
	rec := FeeRecord{
		ID:        fee.ID,
		Amount:    json.Number(fee.Amount.String()),
		FeeType:   fee.FeeType,
		Status:    string(fee.Status),
		DueDate:   models.FormatDate(fee.DueDate),
		StudentID: fee.StudentID,
		CreatedAt: fee.CreatedAt,
	}
	if fee.PaidDate != nil {
		paid := models.FormatDate(*fee.PaidDate)
		rec.PaidDate = &paid
	}
	if student == nil {
		student = fee.Student
	}
	if student != nil {
		rec.StudentName = student.Name
		rec.StudentEmail = student.Email
	}
	return rec
}
