package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, membership *Membership) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Membership, error)
	// FindByNameAt returns the membership row of the given name whose
	// active window contains asOf, or nil.
	FindByNameAt(ctx context.Context, db *gorm.DB, name string, asOf time.Time) (*Membership, error)
	CloseWindow(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
