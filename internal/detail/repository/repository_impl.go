package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/detail/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, detail *domain.Detail) error
	FindByClaim(ctx context.Context, db *gorm.DB, claimID snowflake.ID) (*domain.Detail, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, detail *domain.Detail) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO details (
			id, claim_id, legal_name, preferred_first_name, preferred_last_name,
			badge_title, badge_subtitle, address_line_1, address_line_2,
			city, province, postal, country, publication_format, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		detail.ID,
		detail.ClaimID,
		detail.LegalName,
		detail.PreferredFirstName,
		detail.PreferredLastName,
		detail.BadgeTitle,
		detail.BadgeSubtitle,
		detail.AddressLine1,
		detail.AddressLine2,
		detail.City,
		detail.Province,
		detail.Postal,
		detail.Country,
		detail.PublicationFormat,
		detail.CreatedAt,
		detail.UpdatedAt,
	).Error
}

func (r *repo) FindByClaim(ctx context.Context, db *gorm.DB, claimID snowflake.ID) (*domain.Detail, error) {
	var detail domain.Detail
	err := db.WithContext(ctx).Raw(
		`SELECT id, claim_id, legal_name, preferred_first_name, preferred_last_name,
		        badge_title, badge_subtitle, address_line_1, address_line_2,
		        city, province, postal, country, publication_format, created_at, updated_at
		 FROM details WHERE claim_id = ?`,
		claimID,
	).Scan(&detail).Error
	if err != nil {
		return nil, err
	}
	if detail.ID == 0 {
		return nil, nil
	}
	return &detail, nil
}
