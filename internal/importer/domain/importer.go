package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/pkg/money"
)

// Row is one member record from a legacy registration system export.
// Everything beyond email and membership is optional; historical rows
// are frequently missing addresses and payment references.
type Row struct {
	Email              string
	LegalName          string
	PreferredFirstName string
	PreferredLastName  string
	BadgeTitle         string
	BadgeSubtitle      string
	AddressLine1       string
	AddressLine2       string
	City               string
	Province           string
	Postal             string
	Country            string
	PublicationFormat  string

	// Membership is the tier name as the legacy system spelled it; the
	// importer translates historical spellings to current tier names.
	Membership string
	// MembershipNumber keeps the number the member already holds. Nil
	// allocates the next sequential number instead.
	MembershipNumber *int64

	ChargeAmount     money.Amount
	PaymentReference string
	PaymentComment   string
	Notes            string

	// CreatedAt back-dates the reservation, claim and charge so imported
	// history sorts and prices correctly. Zero means now.
	CreatedAt time.Time
}

// RowResult reports the outcome of importing a single row. Failed rows
// never abort the batch.
type RowResult struct {
	Line             int
	OK               bool
	Errors           []string
	UserID           snowflake.ID
	ReservationID    snowflake.ID
	MembershipNumber int64
}

type Service interface {
	// ImportRow runs one row through the regular ledger operations:
	// find-or-create the user, reserve with the explicit number, attach
	// contact details, record the historical payment and force the paid
	// state. Each step is individually atomic.
	ImportRow(ctx context.Context, line int, row Row) RowResult
	// ImportAll imports rows in order and returns one result per row.
	ImportAll(ctx context.Context, rows []Row) []RowResult
}
