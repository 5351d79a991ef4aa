package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/webhook"
)

// CheckoutRequest describes a single line item hosted checkout
type CheckoutRequest struct {
	CustomerID         string
	CustomerEmail      string
	Currency           string
	ProductName        string
	ProductDescription string
	UnitAmount         int64 // minor units
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

// CheckoutSession is the part of a processor checkout session the settlement flow reads
type CheckoutSession struct {
	ID            string
	URL           string
	PaymentStatus string
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
}

// PaymentGateway is the payment processor as seen by the settlement flow
type PaymentGateway interface {
	// FindCustomerIDByEmail returns "" when the processor has no customer for email
	FindCustomerIDByEmail(ctx context.Context, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// StripeService implements PaymentGateway on Stripe Checkout
type StripeService struct {
	webhookSecret string
}

// NewStripeService configures the Stripe SDK with the secret key
func NewStripeService(secretKey, webhookSecret string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{webhookSecret: webhookSecret}
}

// FindCustomerIDByEmail returns the first Stripe customer registered with email
func (s *StripeService) FindCustomerIDByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	customers := customer.List(params)
	if customers.Next() {
		return customers.Customer().ID, nil
	}
	if err := customers.Err(); err != nil {
		return "", NewPaymentError(CodeAPICallFailed, "failed to look up customer", err)
	}
	return "", nil
}

// CreateCheckoutSession opens a payment mode checkout session
func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.ProductDescription),
					},
					UnitAmount: stripe.Int64(req.UnitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, NewPaymentError(CodeAPICallFailed, "failed to create checkout session", err)
	}
	return toCheckoutSession(sess), nil
}

// GetCheckoutSession retrieves a checkout session by ID
func (s *StripeService) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, NewPaymentError(CodeAPICallFailed, "failed to retrieve checkout session", err)
	}
	return toCheckoutSession(sess), nil
}

// ConstructEvent validates the webhook signature and parses the event
func (s *StripeService) ConstructEvent(payload []byte, signatureHeader string) (*stripe.Event, error) {
	if s.webhookSecret == "" {
		return nil, NewPaymentError(CodeWebhookValidation, "webhook secret not configured", nil)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, NewPaymentError(CodeWebhookValidation, "webhook signature validation failed", err)
	}
	return &event, nil
}

// SessionFromEvent decodes the checkout session carried by a checkout.session.* event
func SessionFromEvent(event *stripe.Event) (*CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session from event %s: %w", event.ID, err)
	}
	return toCheckoutSession(&sess), nil
}

func toCheckoutSession(sess *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		CustomerEmail: sess.CustomerEmail,
		Metadata:      sess.Metadata,
	}
	if out.CustomerEmail == "" && sess.CustomerDetails != nil {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}
