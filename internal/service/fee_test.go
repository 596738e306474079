package service_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/service"
)

func visitWithFees(base int64, fees ...int64) domain.Visit {
	v := domain.Visit{BaseFee: base}
	for _, f := range fees {
		v.Services = append(v.Services, domain.VisitService{Fee: f})
	}
	return v
}

func TestFeeCalculator_Amount(t *testing.T) {
	tests := []struct {
		name string
		bps  int64
		v    domain.Visit
		want int64
	}{
		{"base and two services at 13%", 1300, visitWithFees(1000, 500, 250), 1978},
		{"no tax", 0, visitWithFees(1000, 500), 1500},
		{"no line items", 1300, visitWithFees(1000), 1130},
		{"half cent rounds up", 1300, visitWithFees(50), 57},
		{"just under half rounds down", 1300, visitWithFees(3), 3},
		{"zero", 1300, visitWithFees(0), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calc := service.FeeCalculator{TaxRateBps: tc.bps}
			assert.Equal(t, tc.want, calc.Amount(tc.v))
		})
	}
}

func TestFeeCalculator_Subtotal(t *testing.T) {
	calc := service.FeeCalculator{TaxRateBps: 1300}

	assert.Equal(t, int64(1750), calc.Subtotal(visitWithFees(1000, 500, 250)))
}

// TestFeeCalculator_OrderIndependent checks that permuting line items never
// changes the amount.
func TestFeeCalculator_OrderIndependent(t *testing.T) {
	calc := service.FeeCalculator{TaxRateBps: 1300}
	rng := rand.New(rand.NewPCG(1, 2))

	for range 50 {
		fees := make([]int64, 1+rng.IntN(8))
		for i := range fees {
			fees[i] = rng.Int64N(10_000)
		}
		v := visitWithFees(1000, fees...)
		want := calc.Amount(v)

		rng.Shuffle(len(v.Services), func(i, j int) {
			v.Services[i], v.Services[j] = v.Services[j], v.Services[i]
		})
		assert.Equal(t, want, calc.Amount(v))
	}
}
