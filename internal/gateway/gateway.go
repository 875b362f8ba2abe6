package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/velikanov/digital_shop/internal/models"
)

var ErrSignature = errors.New("signature invalid")

const (
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
	EventIgnored   = "ignored"
)

// Event is a gateway-agnostic view of an inbound webhook delivery.
type Event struct {
	ExternalID string
	Type       string
	Raw        []byte
}

// Gateway abstracts one payment provider. Reconciliation only ever talks
// to this interface, so adding a provider means adding one implementation.
type Gateway interface {
	Name() string
	// CreateIntent registers the pending payment with the provider and
	// returns the provider-assigned transaction id.
	CreateIntent(ctx context.Context, order *models.Order, currency string) (string, error)
	// VerifyWebhook authenticates an inbound delivery and maps it to an
	// Event. A bad signature returns ErrSignature.
	VerifyWebhook(r *http.Request) (*Event, error)
	// Refund issues a full refund for the payment and returns the
	// provider's refund id.
	Refund(ctx context.Context, payment *models.Payment, reason string) (string, error)
}

type Registry map[string]Gateway

func NewRegistry(gateways ...Gateway) Registry {
	r := make(Registry, len(gateways))
	for _, g := range gateways {
		r[g.Name()] = g
	}
	return r
}

func (r Registry) Get(name string) (Gateway, bool) {
	g, ok := r[name]
	return g, ok
}
