package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/refund"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/velikanov/digital_shop/internal/models"
)

type StripeGateway struct {
	WebhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{WebhookSecret: webhookSecret}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateIntent(ctx context.Context, order *models.Order, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(order.Total),
		Currency: stripe.String(currency),
	}
	params.AddMetadata("order_id", fmt.Sprint(order.ID))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create intent: %w", err)
	}
	return pi.ID, nil
}

func (g *StripeGateway) VerifyWebhook(r *http.Request) (*Event, error) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, g.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	var pi stripe.PaymentIntent
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("stripe: unmarshal payment intent: %w", err)
		}
	default:
		return &Event{Type: EventIgnored, Raw: payload}, nil
	}

	typ := EventSucceeded
	if event.Type == "payment_intent.payment_failed" {
		typ = EventFailed
	}
	return &Event{ExternalID: pi.ID, Type: typ, Raw: payload}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, payment *models.Payment, reason string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.ExternalTransactionID),
	}
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: refund: %w", err)
	}
	return r.ID, nil
}
