package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// LockCounter takes the allocator's serialization lock for the
	// duration of the surrounding transaction. Every membership-number
	// computation happens under this lock.
	LockCounter(ctx context.Context, tx *gorm.DB) error
	MaxMembershipNumber(ctx context.Context, tx *gorm.DB) (int64, error)

	Insert(ctx context.Context, tx *gorm.DB, reservation *Reservation) error
	InsertOrder(ctx context.Context, tx *gorm.DB, order *Order) error
	InsertClaim(ctx context.Context, tx *gorm.DB, claim *Claim) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reservation, error)
	FindByMembershipNumber(ctx context.Context, db *gorm.DB, number int64) (*Reservation, error)
	// LockByID reads the reservation row under a row lock, serializing
	// charge and transfer operations per reservation.
	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Reservation, error)
	UpdateState(ctx context.Context, tx *gorm.DB, id snowflake.ID, state State, at time.Time) error

	ActiveOrder(ctx context.Context, db *gorm.DB, reservationID snowflake.ID, at time.Time) (*Order, error)
	ActiveClaim(ctx context.Context, db *gorm.DB, reservationID snowflake.ID, at time.Time) (*Claim, error)
	ActiveClaimFor(ctx context.Context, db *gorm.DB, reservationID, userID snowflake.ID, at time.Time) (*Claim, error)
	CountActiveClaims(ctx context.Context, db *gorm.DB, reservationID snowflake.ID, at time.Time) (int64, error)
	CloseClaim(ctx context.Context, tx *gorm.DB, claimID snowflake.ID, at time.Time) error
}
