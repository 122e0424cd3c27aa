package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/temporal"
)

// State is the payment lifecycle of a reservation. It is mutated only by
// charge processing; the ownership side never touches it.
type State string

const (
	StatePaid        State = "paid"
	StateInstallment State = "installment"
	StateDisabled    State = "disabled"
)

// FirstMembershipNumber is the number handed to the first reservation
// when none exist yet.
const FirstMembershipNumber int64 = 100

// Reservation is one purchasable membership slot. It is created exactly
// once, never deleted, and its membership number never changes.
type Reservation struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	MembershipNumber int64        `json:"membership_number" gorm:"not null;uniqueIndex:ux_reservations_membership_number"`
	State            State        `json:"state" gorm:"type:text;not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

func (r Reservation) Transferable() bool { return r.State == StatePaid }

// Order asserts, for its active window, that the reservation is of a
// given membership tier. The membership row it references pins the price
// that was current when the purchase began.
type Order struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID `json:"reservation_id" gorm:"not null;index"`
	MembershipID  snowflake.ID `json:"membership_id" gorm:"not null;index"`
	temporal.Window `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// Claim asserts, for its active window, that a user owns the
// reservation. At most one claim per reservation is active at any
// instant; transfer closes the old claim and opens a new one atomically.
type Claim struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ReservationID snowflake.ID `json:"reservation_id" gorm:"not null;index"`
	UserID        snowflake.ID `json:"user_id" gorm:"not null;index"`
	temporal.Window `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Claim) TableName() string { return "claims" }

func (c Claim) Transferable() bool { return c.ActiveTo == nil }
