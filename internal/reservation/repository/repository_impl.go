package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/reservation/domain"
	"github.com/openconreg/conreg/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// LockCounter pins the single sentinel row in membership_counters for
// the rest of the transaction. The row is created by migrations; the
// insert here only covers stores that skipped them (tests).
func (r *repo) LockCounter(ctx context.Context, tx *gorm.DB) error {
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO membership_counters (id, updated_at)
		 VALUES (1, ?)
		 ON CONFLICT (id) DO NOTHING`,
		time.Now().UTC(),
	).Error; err != nil {
		return err
	}

	var locked int64
	return tx.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT id FROM membership_counters WHERE id = 1 %s`, db.RowLock(tx)),
	).Scan(&locked).Error
}

func (r *repo) MaxMembershipNumber(ctx context.Context, tx *gorm.DB) (int64, error) {
	var max int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(membership_number), 0) FROM reservations`,
	).Scan(&max).Error
	return max, err
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, reservation *domain.Reservation) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO reservations (id, membership_number, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		reservation.ID,
		reservation.MembershipNumber,
		string(reservation.State),
		reservation.CreatedAt,
		reservation.UpdatedAt,
	).Error
}

func (r *repo) InsertOrder(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO orders (id, reservation_id, membership_id, active_from, active_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.ReservationID,
		order.MembershipID,
		order.ActiveFrom,
		order.ActiveTo,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) InsertClaim(ctx context.Context, tx *gorm.DB, claim *domain.Claim) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO claims (id, reservation_id, user_id, active_from, active_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		claim.ID,
		claim.ReservationID,
		claim.UserID,
		claim.ActiveFrom,
		claim.ActiveTo,
		claim.CreatedAt,
		claim.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Reservation, error) {
	return r.scanReservation(ctx, conn,
		`SELECT id, membership_number, state, created_at, updated_at
		 FROM reservations WHERE id = ?`,
		id,
	)
}

func (r *repo) FindByMembershipNumber(ctx context.Context, conn *gorm.DB, number int64) (*domain.Reservation, error) {
	return r.scanReservation(ctx, conn,
		`SELECT id, membership_number, state, created_at, updated_at
		 FROM reservations WHERE membership_number = ?`,
		number,
	)
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Reservation, error) {
	return r.scanReservation(ctx, tx,
		fmt.Sprintf(`SELECT id, membership_number, state, created_at, updated_at
		 FROM reservations WHERE id = ? %s`, db.RowLock(tx)),
		id,
	)
}

func (r *repo) scanReservation(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.Reservation, error) {
	var reservation domain.Reservation
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&reservation).Error
	if err != nil {
		return nil, err
	}
	if reservation.ID == 0 {
		return nil, nil
	}
	return &reservation, nil
}

func (r *repo) UpdateState(ctx context.Context, tx *gorm.DB, id snowflake.ID, state domain.State, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE reservations SET state = ?, updated_at = ? WHERE id = ?`,
		string(state),
		at,
		id,
	).Error
}

func (r *repo) ActiveOrder(ctx context.Context, conn *gorm.DB, reservationID snowflake.ID, at time.Time) (*domain.Order, error) {
	var order domain.Order
	err := conn.WithContext(ctx).Raw(
		`SELECT id, reservation_id, membership_id, active_from, active_to, created_at, updated_at
		 FROM orders
		 WHERE reservation_id = ?
		   AND active_from <= ?
		   AND (active_to IS NULL OR active_to > ?)
		 ORDER BY active_from DESC
		 LIMIT 1`,
		reservationID,
		at,
		at,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ActiveClaim(ctx context.Context, conn *gorm.DB, reservationID snowflake.ID, at time.Time) (*domain.Claim, error) {
	var claim domain.Claim
	err := conn.WithContext(ctx).Raw(
		`SELECT id, reservation_id, user_id, active_from, active_to, created_at, updated_at
		 FROM claims
		 WHERE reservation_id = ?
		   AND active_from <= ?
		   AND (active_to IS NULL OR active_to > ?)
		 ORDER BY active_from DESC
		 LIMIT 1`,
		reservationID,
		at,
		at,
	).Scan(&claim).Error
	if err != nil {
		return nil, err
	}
	if claim.ID == 0 {
		return nil, nil
	}
	return &claim, nil
}

func (r *repo) ActiveClaimFor(ctx context.Context, conn *gorm.DB, reservationID, userID snowflake.ID, at time.Time) (*domain.Claim, error) {
	var claim domain.Claim
	err := conn.WithContext(ctx).Raw(
		`SELECT id, reservation_id, user_id, active_from, active_to, created_at, updated_at
		 FROM claims
		 WHERE reservation_id = ?
		   AND user_id = ?
		   AND active_from <= ?
		   AND (active_to IS NULL OR active_to > ?)
		 LIMIT 1`,
		reservationID,
		userID,
		at,
		at,
	).Scan(&claim).Error
	if err != nil {
		return nil, err
	}
	if claim.ID == 0 {
		return nil, nil
	}
	return &claim, nil
}

func (r *repo) CountActiveClaims(ctx context.Context, conn *gorm.DB, reservationID snowflake.ID, at time.Time) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM claims
		 WHERE reservation_id = ?
		   AND active_from <= ?
		   AND (active_to IS NULL OR active_to > ?)`,
		reservationID,
		at,
		at,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CloseClaim(ctx context.Context, tx *gorm.DB, claimID snowflake.ID, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE claims SET active_to = ?, updated_at = ? WHERE id = ? AND active_to IS NULL`,
		at,
		at,
		claimID,
	).Error
}

