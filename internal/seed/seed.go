package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/money"
	"gorm.io/gorm"
)

// EnsureMemberships seeds the membership catalogue so a fresh install
// can sell memberships out of the box. Existing rows are left alone, so
// running it on every startup is safe even after operators have changed
// prices.
func EnsureMemberships(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	type tier struct {
		Name  string
		Price money.Amount
	}
	tiers := []tier{
		{"adult", money.MustParse("370.00")},
		{"young_adult", money.MustParse("225.00")},
		{"unwaged", money.MustParse("225.00")},
		{"child", money.MustParse("105.00")},
		{"kid_in_tow", money.MustParse("0.00")},
		{"supporting", money.MustParse("75.00")},
		{"kiwi", money.MustParse("50.00")},
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, t := range tiers {
			var count int64
			err := tx.WithContext(ctx).Raw(
				`SELECT COUNT(1) FROM memberships WHERE name = ?`, t.Name,
			).Scan(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			err = tx.WithContext(ctx).Exec(
				`INSERT INTO memberships (id, name, price, active_from, active_to, created_at, updated_at)
				 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
				node.Generate(), t.Name, t.Price, now, now, now,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureCounter creates the sentinel allocator row the number allocator
// locks. Harmless when it already exists.
func EnsureCounter(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	return db.Exec(
		`INSERT INTO membership_counters (id, updated_at) VALUES (1, ?) ON CONFLICT (id) DO NOTHING`,
		time.Now().UTC(),
	).Error
}
