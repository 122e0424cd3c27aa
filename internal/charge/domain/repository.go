package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/money"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, charge *Charge) error
	// SumSuccessful totals the settled amounts for a reservation; the
	// remaining balance is always derived from this, never cached.
	SumSuccessful(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) (money.Amount, error)
	ListByReservation(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) ([]*Charge, error)
}
