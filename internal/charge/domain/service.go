package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/money"
)

type ChargeRequest struct {
	ReservationID snowflake.ID
	UserID        snowflake.ID
	PaymentMethod string
	// Amount nil means "the remaining balance".
	Amount *money.Amount
}

type RecordRequest struct {
	ReservationID snowflake.ID
	UserID        snowflake.ID
	Amount        money.Amount
	Reference     string
	Comment       string
	// AsOf back-dates the charge for historical imports; zero means now.
	AsOf time.Time
}

type Service interface {
	// Charge runs one payment attempt: overpay is rejected before the
	// processor is invoked; declines are committed as failed charges.
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
	// Record writes an already-settled charge (historical import, cash
	// at the door) without invoking the processor.
	Record(ctx context.Context, req RecordRequest) (Charge, error)
	// Balance reports the remaining amount owed on a reservation.
	Balance(ctx context.Context, reservationID snowflake.ID) (money.Amount, error)
	ListByReservation(ctx context.Context, reservationID snowflake.ID) ([]*Charge, error)
}

var (
	ErrOverpay             = errors.New("overpay")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrReservationDisabled = errors.New("reservation_disabled")
	ErrNoActiveOrder       = errors.New("no_active_order")
	ErrLockTimeout         = errors.New("lock_timeout")
)
