package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert writes the user unless the email already exists. The boolean
// reports whether a row was actually inserted, so callers can resolve
// the concurrent find-or-create race with a re-read.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		user.ID,
		user.Email,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, created_at, updated_at
		 FROM users WHERE email = ?`,
		email,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) InsertNote(ctx context.Context, db *gorm.DB, note *domain.Note) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notes (id, user_id, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		note.ID,
		note.UserID,
		note.Content,
		note.Metadata,
		note.CreatedAt,
	).Error
}

func (r *repo) ListNotes(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*domain.Note, error) {
	var notes []*domain.Note
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, content, metadata, created_at
		 FROM notes WHERE user_id = ?
		 ORDER BY created_at, id`,
		userID,
	).Scan(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}
