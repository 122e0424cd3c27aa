package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	InsertNote(ctx context.Context, db *gorm.DB, note *Note) error
	ListNotes(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*Note, error)
}
