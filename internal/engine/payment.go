package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentProcessor charges for purchased numbers.
type PaymentProcessor interface {
	Charge(ctx context.Context, c Charge) (Receipt, error)
}

type Charge struct {
	Amount      float64  `json:"amount"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
	Numbers     []string `json:"numbers"`
}

type Receipt struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	ChargedAt string  `json:"charged_at" format:"date-time"`
}

// SimulatedPayments approves every charge after Delay. No money moves.
type SimulatedPayments struct {
	Delay    time.Duration
	Currency string
	Now      func() time.Time
}

func (p SimulatedPayments) Charge(ctx context.Context, c Charge) (Receipt, error) {
	if c.Amount < 0 {
		return Receipt{}, fmt.Errorf("invalid charge amount %.2f", c.Amount)
	}
	if p.Delay > 0 {
		timer := time.NewTimer(p.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("payment canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	currency := c.Currency
	if currency == "" {
		currency = p.Currency
	}
	if currency == "" {
		currency = "USD"
	}
	return Receipt{
		ID:        uuid.NewString(),
		Amount:    c.Amount,
		Currency:  currency,
		ChargedAt: now().UTC().Format(time.RFC3339),
	}, nil
}
