package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// FindOrCreate resolves the user for a case-normalized email,
	// creating the record when absent.
	FindOrCreate(ctx context.Context, email string) (User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id snowflake.ID) (User, error)
	AddNote(ctx context.Context, userID snowflake.ID, content string, metadata map[string]any) (Note, error)
	Notes(ctx context.Context, userID snowflake.ID) ([]*Note, error)
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidNote  = errors.New("invalid_note")
	ErrNotFound     = errors.New("not_found")
)
