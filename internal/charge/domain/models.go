package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/money"
)

// ChargeState is the outcome of one payment attempt.
type ChargeState string

const (
	ChargeSuccessful ChargeState = "successful"
	ChargeFailed     ChargeState = "failed"
)

// Charge is an immutable record of one payment attempt against a
// reservation. Failed attempts are kept as permanent audit records and
// are never retried automatically.
type Charge struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID        snowflake.ID `json:"user_id" gorm:"not null;index"`
	ReservationID snowflake.ID `json:"reservation_id" gorm:"not null;index"`
	Amount        money.Amount `json:"amount" gorm:"not null"`
	State         ChargeState  `json:"state" gorm:"type:text;not null"`
	Reference     string       `json:"reference" gorm:"type:text"`
	Comment       string       `json:"comment" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (Charge) TableName() string { return "charges" }
