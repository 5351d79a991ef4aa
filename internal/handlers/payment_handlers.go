package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

// MaxWebhookBodyBytes bounds the webhook payload read into memory
const MaxWebhookBodyBytes = int64(65536)

// WebhookVerifier validates a processor webhook delivery and decodes its event
type WebhookVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (*stripe.Event, error)
}

// PaymentSettler is the settlement surface the payment endpoints drive
type PaymentSettler interface {
	CreatePayment(ctx context.Context, req services.CreatePaymentRequest, origin string) (*services.CreatePaymentResult, error)
	VerifyPayment(ctx context.Context, sessionID string) (*services.VerifyResult, error)
	Settle(ctx context.Context, sess *services.CheckoutSession) (*services.VerifyResult, error)
}

type PaymentHandler struct {
	payments PaymentSettler
	webhooks WebhookVerifier
	db       *gorm.DB
	logger   *zap.Logger
}

// NewPaymentHandler creates the handler for the public payment endpoints. webhooks may be nil.
func NewPaymentHandler(payments PaymentSettler, webhooks WebhookVerifier, db *gorm.DB, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, webhooks: webhooks, db: db, logger: logger}
}

// CreatePayment opens a checkout session for the payer
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var req services.CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "Invalid payment request",
			"success": false,
			"details": err.Error(),
		})
	}

	result, err := h.payments.CreatePayment(c.Request().Context(), req, c.Request().Header.Get(echo.HeaderOrigin))
	if err != nil {
		// Checkout callers only distinguish success from failure, so input errors answer 500 too.
		return h.paymentFailure(c, err, http.StatusInternalServerError)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"url":       result.URL,
		"sessionId": result.SessionID,
		"success":   true,
	})
}

type verifyPaymentRequest struct {
	SessionID string `json:"sessionId"`
}

// VerifyPayment settles a checkout session the payer returned from
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "Invalid verification request",
			"success": false,
			"details": err.Error(),
		})
	}

	result, err := h.payments.VerifyPayment(c.Request().Context(), req.SessionID)
	if err != nil {
		return h.paymentFailure(c, err, http.StatusBadRequest)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   result.Message,
		"feeRecord": services.NewFeeRecord(result.Fee, result.Student),
	})
}

// paymentFailure answers with clientStatus when the request itself was at fault
func (h *PaymentHandler) paymentFailure(c echo.Context, err error, clientStatus int) error {
	var perr *services.PaymentError
	if !errors.As(err, &perr) {
		h.logger.Error("Unexpected payment failure", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "Internal server error",
			"success": false,
			"details": err.Error(),
		})
	}

	if perr.Code == services.CodePaymentNotCompleted {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"message": perr.Message,
		})
	}

	var details interface{} = perr.Message
	if perr.Err != nil {
		details = perr.Err.Error()
		var ve validator.ValidationErrors
		if errors.As(perr.Err, &ve) {
			details = validationDetails(ve)
		}
	}

	code := http.StatusInternalServerError
	if services.IsClientError(err) {
		code = clientStatus
	} else {
		h.logger.Error("Payment operation failed", zap.String("code", perr.Code), zap.Error(err))
	}
	return c.JSON(code, echo.Map{
		"error":   perr.Message,
		"success": false,
		"details": details,
	})
}

// StripeWebhook settles checkout sessions reported by the processor, so a
// payment is recorded even when the payer never comes back to verify it
func (h *PaymentHandler) StripeWebhook(c echo.Context) error {
	if h.webhooks == nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("stripe webhook: error reading request body", zap.Error(err))
		return c.NoContent(http.StatusBadRequest)
	}

	signatureHeader := c.Request().Header.Get("Stripe-Signature")
	if signatureHeader == "" {
		h.logger.Warn("stripe webhook: missing Stripe-Signature header")
		return c.NoContent(http.StatusBadRequest)
	}

	event, err := h.webhooks.ConstructEvent(payload, signatureHeader)
	if err != nil {
		h.logger.Warn("stripe webhook: invalid event", zap.Error(err))
		return c.NoContent(http.StatusBadRequest)
	}

	log := h.logger.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		log.Debug("stripe webhook: ignoring event")
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	sess, err := services.SessionFromEvent(event)
	if err != nil {
		log.Warn("stripe webhook: undecodable session", zap.Error(err))
		return c.NoContent(http.StatusBadRequest)
	}

	ctx := c.Request().Context()
	history, fresh, err := h.recordCallback(ctx, event, sess)
	if err != nil {
		log.Error("stripe webhook: failed to store callback", zap.Error(err))
		return c.NoContent(http.StatusInternalServerError)
	}
	if !fresh && history.ProcessedAt != nil {
		log.Info("stripe webhook: event already processed")
		return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
	}

	result, err := h.payments.Settle(ctx, sess)
	switch services.PaymentErrorCode(err) {
	case "":
		h.markCallback(ctx, history, true, "")
		log.Info("stripe webhook: session settled",
			zap.String("session_id", sess.ID),
			zap.String("fee_id", result.Fee.ID.String()),
			zap.String("message", result.Message))
		return c.JSON(http.StatusOK, echo.Map{"received": true})

	case services.CodePaymentNotCompleted, services.CodeMissingEmail,
		services.CodeStudentUnresolvable, services.CodeInvalidMetadata:
		// Retrying will not change the outcome. Delayed payments arrive as async_payment_succeeded.
		h.markCallback(ctx, history, true, err.Error())
		log.Warn("stripe webhook: session not settled", zap.Error(err))
		return c.JSON(http.StatusOK, echo.Map{"received": true})

	default:
		// Left unprocessed so the redelivery is settled again.
		h.markCallback(ctx, history, false, err.Error())
		log.Error("stripe webhook: settlement failed", zap.Error(err))
		return c.NoContent(http.StatusInternalServerError)
	}
}

// recordCallback stores the delivery once per event id and reports whether this call created it
func (h *PaymentHandler) recordCallback(ctx context.Context, event *stripe.Event, sess *services.CheckoutSession) (*models.PaymentCallbackHistory, bool, error) {
	history := &models.PaymentCallbackHistory{
		PaymentGateway: models.PaymentGatewayStripe,
		EventID:        event.ID,
		EventType:      string(event.Type),
		SessionID:      sess.ID,
		Metadata:       datatypes.JSON(event.Data.Raw),
	}

	res := h.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(history)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return history, true, nil
	}

	var existing models.PaymentCallbackHistory
	err := h.db.WithContext(ctx).
		Where("payment_gateway = ? AND event_id = ?", models.PaymentGatewayStripe, event.ID).
		First(&existing).Error
	return &existing, false, err
}

func (h *PaymentHandler) markCallback(ctx context.Context, history *models.PaymentCallbackHistory, processed bool, processingError string) {
	updates := map[string]interface{}{"processing_error": processingError}
	if processed {
		now := time.Now()
		updates["processed_at"] = &now
	}
	if err := h.db.WithContext(ctx).Model(history).Updates(updates).Error; err != nil {
		h.logger.Error("stripe webhook: failed to update callback history", zap.Uint("id", history.ID), zap.Error(err))
	}
}
