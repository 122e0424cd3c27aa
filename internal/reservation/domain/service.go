package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReserveRequest struct {
	MembershipID snowflake.ID
	CustomerID   snowflake.ID
	// MembershipNumber preserves historical numbering on import; nil
	// allocates the next sequential number.
	MembershipNumber *int64
	// AsOf back-dates the reservation and its windows; zero means now.
	AsOf time.Time
}

type Service interface {
	// Reserve allocates a slot, its order and its claim as one atomic
	// transaction.
	Reserve(ctx context.Context, req ReserveRequest) (Reservation, error)
	FindByID(ctx context.Context, id snowflake.ID) (Reservation, error)
	FindByMembershipNumber(ctx context.Context, number int64) (Reservation, error)
	ActiveClaim(ctx context.Context, reservationID snowflake.ID, at time.Time) (*Claim, error)
	ActiveOrder(ctx context.Context, reservationID snowflake.ID, at time.Time) (*Order, error)
	// MarkPaid force-sets the paid state; used by the import façade for
	// historical rows that are fully paid by definition.
	MarkPaid(ctx context.Context, id snowflake.ID) error
	// Disable withdraws the slot from sale and transfer.
	Disable(ctx context.Context, id snowflake.ID) error
}

var (
	ErrNotFound        = errors.New("not_found")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrNumberTaken     = errors.New("membership_number_taken")
	ErrInvalidNumber   = errors.New("invalid_membership_number")
	ErrClaimConflict   = errors.New("active_claim_conflict")
	ErrLockTimeout     = errors.New("lock_timeout")
)
