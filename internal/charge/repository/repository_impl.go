package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/charge/domain"
	"github.com/openconreg/conreg/pkg/money"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, charge *domain.Charge) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO charges (id, user_id, reservation_id, amount, state, reference, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		charge.ID,
		charge.UserID,
		charge.ReservationID,
		int64(charge.Amount),
		string(charge.State),
		charge.Reference,
		charge.Comment,
		charge.CreatedAt,
	).Error
}

func (r *repo) SumSuccessful(ctx context.Context, conn *gorm.DB, reservationID snowflake.ID) (money.Amount, error) {
	var total int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM charges
		 WHERE reservation_id = ? AND state = ?`,
		reservationID,
		string(domain.ChargeSuccessful),
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return money.Amount(total), nil
}

func (r *repo) ListByReservation(ctx context.Context, conn *gorm.DB, reservationID snowflake.ID) ([]*domain.Charge, error) {
	var charges []*domain.Charge
	err := conn.WithContext(ctx).Raw(
		`SELECT id, user_id, reservation_id, amount, state, reference, comment, created_at
		 FROM charges
		 WHERE reservation_id = ?
		 ORDER BY created_at, id`,
		reservationID,
	).Scan(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}
