// Package payments holds the gateways paid subscriptions can be bought
// through. A gateway starts a payment for a pending subscription entry and
// verifies the provider's confirmation.
package payments

import (
	"fmt"
	"sort"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Request tells the member how to pay.
type Request struct {
	Gateway     string `json:"gateway"`
	SublogID    int64  `json:"sublog"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Manual      bool   `json:"manual,omitempty"`
}

// Confirmation is a verified payment notification.
type Confirmation struct {
	SublogID    int64
	VendorRef   string
	AmountCents int64
}

// Gateway is one payment provider.
type Gateway interface {
	Name() string
	Start(sub models.Subscription, entry models.SubscriptionLog) (Request, error)
	// Verify checks a callback body; manual gateways never accept callbacks.
	Verify(body []byte) (*Confirmation, error)
}

// Registry maps gateway names to gateways.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gs ...Gateway) *Registry {
	r := &Registry{gateways: map[string]Gateway{}}
	for _, g := range gs {
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the named gateway or payment_gateway_unknown.
func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, apperr.BadRequest("payment_gateway_unknown")
	}
	return g, nil
}

// Names lists the registered gateways.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Manual records the entry as pending until an administrator confirms it.
type Manual struct{}

func (Manual) Name() string { return "manual" }

func (Manual) Start(sub models.Subscription, entry models.SubscriptionLog) (Request, error) {
	return Request{Gateway: "manual", SublogID: entry.ID, AmountCents: sub.CostCents, Currency: sub.Currency, Manual: true}, nil
}

func (Manual) Verify(body []byte) (*Confirmation, error) {
	return nil, apperr.BadRequest("payment_invalid")
}

// FormatCost renders cents as a decimal amount with the currency code.
func FormatCost(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
