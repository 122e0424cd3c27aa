package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/membership/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, membership *domain.Membership) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO memberships (id, name, price, active_from, active_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		membership.ID,
		membership.Name,
		membership.Price,
		membership.ActiveFrom,
		membership.ActiveTo,
		membership.CreatedAt,
		membership.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Membership, error) {
	var membership domain.Membership
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, active_from, active_to, created_at, updated_at
		 FROM memberships WHERE id = ?`,
		id,
	).Scan(&membership).Error
	if err != nil {
		return nil, err
	}
	if membership.ID == 0 {
		return nil, nil
	}
	return &membership, nil
}

func (r *repo) FindByNameAt(ctx context.Context, db *gorm.DB, name string, asOf time.Time) (*domain.Membership, error) {
	var membership domain.Membership
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, active_from, active_to, created_at, updated_at
		 FROM memberships
		 WHERE name = ?
		   AND active_from <= ?
		   AND (active_to IS NULL OR active_to > ?)
		 ORDER BY active_from DESC
		 LIMIT 1`,
		name,
		asOf,
		asOf,
	).Scan(&membership).Error
	if err != nil {
		return nil, err
	}
	if membership.ID == 0 {
		return nil, nil
	}
	return &membership, nil
}

func (r *repo) CloseWindow(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE memberships SET active_to = ?, updated_at = ? WHERE id = ?`,
		at,
		at,
		id,
	).Error
}

