// Package gateway holds the payment gateway adapters. Only the
// simulated one exists; a real PSP integration plugs in behind the same
// port.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripvana/travel-booking-system/internal/billing/application"
	"github.com/tripvana/travel-booking-system/internal/billing/domain"
)

// Simulated approves charges up to a ceiling and declines cards ending
// in 0000, which gives tests and demos a deterministic failure path.
type Simulated struct {
	CeilingCents int64
}

func NewSimulated(ceilingCents int64) *Simulated {
	return &Simulated{CeilingCents: ceilingCents}
}

func (g *Simulated) Charge(_ context.Context, req application.ChargeRequest) error {
	if g.CeilingCents > 0 && req.AmountCents > g.CeilingCents {
		return fmt.Errorf("%w: amount above limit", domain.ErrPaymentDeclined)
	}
	if strings.HasSuffix(req.CardNumber, "0000") {
		return fmt.Errorf("%w: card declined", domain.ErrPaymentDeclined)
	}
	return nil
}
