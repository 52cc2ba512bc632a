package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdvlite/go-pos-sync.git/internal/pos"
	"github.com/shopspring/decimal"
)

var ErrInsufficientPoints = errors.New("insufficient points balance")

// Store is the customer record access the ledger needs. Satisfied by the
// remote Postgres store; narrow interface for testability.
type Store interface {
	GetCustomer(ctx context.Context, id string) (pos.Customer, error)
	UpdateCustomerPoints(ctx context.Context, id string, points int64) error
}

// Ledger runs read-modify-write balance operations against a customer row.
// Not atomic across actors; acceptable for a single-till deployment where
// concurrent redemptions by the same customer are rare.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger { return &Ledger{store: store} }

// Earn credits points and returns the new balance. Applied once, at payment
// confirmation, never at order creation.
func (l *Ledger) Earn(ctx context.Context, customerID string, points int64) (int64, error) {
	if points <= 0 {
		return 0, fmt.Errorf("earn: non-positive amount %d", points)
	}
	c, err := l.store.GetCustomer(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("earn: read balance: %w", err)
	}
	balance := c.Points + points
	if err := l.store.UpdateCustomerPoints(ctx, customerID, balance); err != nil {
		return 0, fmt.Errorf("earn: write balance: %w", err)
	}
	return balance, nil
}

// Redeem debits points, rejecting any amount that would drive the balance
// negative. Nothing is written on rejection.
func (l *Ledger) Redeem(ctx context.Context, customerID string, points int64) (int64, error) {
	if points <= 0 {
		return 0, fmt.Errorf("redeem: non-positive amount %d", points)
	}
	c, err := l.store.GetCustomer(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("redeem: read balance: %w", err)
	}
	if points > c.Points {
		return c.Points, ErrInsufficientPoints
	}
	balance := c.Points - points
	if err := l.store.UpdateCustomerPoints(ctx, customerID, balance); err != nil {
		return 0, fmt.Errorf("redeem: write balance: %w", err)
	}
	return balance, nil
}

// PointsForTotal converts an order total to loyalty points: R$1 = 100
// points, floored.
func PointsForTotal(total decimal.Decimal) int64 {
	return total.Mul(decimal.NewFromInt(100)).Floor().IntPart()
}
