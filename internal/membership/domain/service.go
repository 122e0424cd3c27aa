package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/money"
)

type CreateMembershipRequest struct {
	Name       string
	Price      money.Amount
	ActiveFrom time.Time
	ActiveTo   *time.Time
}

type Service interface {
	Create(ctx context.Context, req CreateMembershipRequest) (Membership, error)
	FindByID(ctx context.Context, id snowflake.ID) (Membership, error)
	// FindByName resolves the row active at asOf, so historical imports
	// land on the price that was current at the time being imported.
	FindByName(ctx context.Context, name string, asOf time.Time) (Membership, error)
	// ChangePrice closes the current row at the change instant and opens
	// a new open-ended row with the new price.
	ChangePrice(ctx context.Context, id snowflake.ID, price money.Amount, at time.Time) (Membership, error)
	// Retire closes the active window without a replacement, removing the
	// tier from sale.
	Retire(ctx context.Context, id snowflake.ID, at time.Time) error
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidPrice = errors.New("invalid_price")
	ErrNotFound     = errors.New("not_found")
	ErrNotActive    = errors.New("membership_not_active")
)
