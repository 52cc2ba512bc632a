package pos

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// KitchenStatus is independent of payment/cancellation status and only
// meaningful while the order is not cancelled.
type KitchenStatus string

const (
	KitchenPending KitchenStatus = "pending"
	KitchenDone    KitchenStatus = "done"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:      {StatusCancelled: true},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderCancelled    = errors.New("order is cancelled")
)

// ConfirmPayment moves pending_payment -> completed and stamps the
// payment fields. Kitchen work starts at pending.
func (o *Order) ConfirmPayment(method PaymentMethod, seller string, now time.Time) error {
	if !CanTransition(o.Status, StatusCompleted) {
		return ErrInvalidTransition
	}
	o.Status = StatusCompleted
	o.KitchenStatus = KitchenPending
	o.PaymentMethod = method
	o.SellerName = seller
	o.UpdatedAt = now
	return nil
}

// Cancel is terminal and one-way. Cancelling an already cancelled order is
// a no-op. KitchenStatus is left untouched as an audit trail.
func (o *Order) Cancel(now time.Time) error {
	if o.Status == StatusCancelled {
		return nil
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return ErrInvalidTransition
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

func (o *Order) MarkKitchenDone(now time.Time) error {
	if o.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	o.KitchenStatus = KitchenDone
	o.UpdatedAt = now
	return nil
}

func (o *Order) ReturnToPrep(now time.Time) error {
	if o.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	o.KitchenStatus = KitchenPending
	o.UpdatedAt = now
	return nil
}
