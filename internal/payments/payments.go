// Package payments implements service.PaymentGateway against Mercado Pago and
// an in-memory processor used in mock mode and tests.
package payments

import (
	"errors"
	"fmt"
	"math"

	"github.com/pkordes/homecare/internal/domain"
)

// ErrDeclined is returned when the processor refuses a charge or a card.
// It wraps domain.ErrChargeRejected.
var ErrDeclined = fmt.Errorf("payments: declined: %w", domain.ErrChargeRejected)

// ErrCurrencyMismatch is returned when a charge asks for a currency other
// than the one the gateway account settles in. It wraps domain.ErrChargeRejected.
var ErrCurrencyMismatch = fmt.Errorf("payments: currency mismatch: %w", domain.ErrChargeRejected)

// ErrNotConfigured is returned by NewMercadoPago when a live gateway is
// requested without credentials.
var ErrNotConfigured = errors.New("payments: gateway not configured")

// Charge statuses that count as a successful authorization.
const (
	StatusApproved   = "approved"
	StatusAuthorized = "authorized"
)

// Succeeded reports whether a processor status is a successful authorization.
func Succeeded(status string) bool {
	return status == StatusApproved || status == StatusAuthorized
}

// toMajor converts cents to the decimal amount the processor API expects.
func toMajor(cents int64) float64 {
	return float64(cents) / 100
}

// toMinor converts a decimal processor amount back to cents.
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
