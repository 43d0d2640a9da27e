package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

const (
	MessageOK           = "ok"
	MessageUnauthorized = "unauthorized"
)

// Result is the outcome of a single checkout. It is built once and exposes
// read-only accessors, so a Result can be shared freely.
type Result struct {
	authorized bool
	subtotal   decimal.Decimal
	total      pricing.Total
	message    string
}

func unauthorized() Result {
	return Result{
		subtotal: decimal.Zero,
		total:    pricing.Total{Amount: decimal.Zero},
		message:  MessageUnauthorized,
	}
}

func (r Result) Authorized() bool          { return r.authorized }
func (r Result) Subtotal() decimal.Decimal { return r.subtotal }
func (r Result) Total() pricing.Total      { return r.total }
func (r Result) Message() string           { return r.message }

// MarshalJSON renders the result with monetary fields as JSON numbers.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Authorized bool          `json:"authorized"`
		Subtotal   json.Number   `json:"subtotal"`
		Total      pricing.Total `json:"total"`
		Message    string        `json:"message"`
	}{
		Authorized: r.authorized,
		Subtotal:   json.Number(r.subtotal.StringFixed(2)),
		Total:      r.total,
		Message:    r.message,
	})
}

// Service authorizes a credential and prices the cart. It holds no per-call
// state and is safe for concurrent use.
type Service struct {
	Logger      zerolog.Logger
	Metrics     *obs.CheckoutMetrics
	DefaultTier string
}

// Checkout authorizes credential and, when it carries a valid token, prices
// items for tier. Authorization failures are reported in the Result and never
// as an error; the cart is not inspected for them. Invalid cart data on an
// authorized request is returned as a pricing error.
func (s *Service) Checkout(ctx context.Context, credential string, items []pricing.LineItem, tier string) (Result, error) {
	tier = s.tier(tier)
	_, span := otel.Tracer("checkout").Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkout.tier", tier),
		attribute.Int("checkout.items", len(items)),
	)

	if !auth.Authorized(credential) {
		span.SetAttributes(attribute.Bool("checkout.authorized", false))
		s.Metrics.Observe(tier, "unauthorized", 0)
		s.Logger.Info().Str("tier", tier).Msg("checkout_rejected")
		return unauthorized(), nil
	}
	span.SetAttributes(attribute.Bool("checkout.authorized", true))

	subtotal, err := pricing.ComputeSubtotal(items)
	if err != nil {
		s.Metrics.Observe(tier, "invalid", 0)
		s.Logger.Warn().Err(err).Str("tier", tier).Int("items", len(items)).Msg("checkout_invalid_cart")
		span.RecordError(err)
		return Result{}, fmt.Errorf("compute subtotal: %w", err)
	}
	total, err := pricing.ApplyDiscount(subtotal, tier)
	if err != nil {
		s.Metrics.Observe(tier, "invalid", 0)
		span.RecordError(err)
		return Result{}, fmt.Errorf("apply discount: %w", err)
	}

	amount, _ := total.Amount.Float64()
	s.Metrics.Observe(tier, "ok", amount)
	s.Logger.Debug().
		Str("tier", tier).
		Int("items", len(items)).
		Str("subtotal", subtotal.StringFixed(2)).
		Str("total", total.String()).
		Msg("checkout_completed")

	return Result{
		authorized: true,
		subtotal:   subtotal,
		total:      total,
		message:    MessageOK,
	}, nil
}

func (s *Service) tier(tier string) string {
	if tier != "" {
		return tier
	}
	if s.DefaultTier != "" {
		return s.DefaultTier
	}
	return pricing.DefaultTier
}
