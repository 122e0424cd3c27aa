package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/money"
	"github.com/openconreg/conreg/pkg/temporal"
)

// Membership is a priced product definition. A price change closes the
// current row's window and inserts a new row; rows are never mutated, so
// purchases keep pointing at the price that was current when they began.
type Membership struct {
	ID    snowflake.ID `json:"id" gorm:"primaryKey"`
	Name  string       `json:"name" gorm:"type:text;not null;index"`
	Price money.Amount `json:"price" gorm:"not null"`
	temporal.Window `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Membership) TableName() string { return "memberships" }
