package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	reservationdomain "github.com/openconreg/conreg/internal/reservation/domain"
	userdomain "github.com/openconreg/conreg/internal/user/domain"
)

type ApplyRequest struct {
	ReservationID snowflake.ID
	FromUserID    snowflake.ID
	ToUserID      snowflake.ID
	// AuditBy is the operator email that authorized the transfer; it is
	// written into the audit notes on both parties.
	AuditBy string
}

type PlanRequest struct {
	ReservationID snowflake.ID
	// NewOwner is the prospective buyer's email address.
	NewOwner string
	// CopyContact carries the UI's checkbox value; see ParseCopyContact.
	CopyContact string
}

// Plan is the read-only preview of a prospective transfer. Nothing is
// persisted while planning; a buyer without an account shows up with a
// nil ToUser and is only created when the transfer is applied.
type Plan struct {
	Reservation *reservationdomain.Reservation
	FromUser    *userdomain.User
	ToUser      *userdomain.User
	NewOwner    string
	CopyContact bool
	Errors      []string
}

func (p Plan) Valid() bool { return len(p.Errors) == 0 }

type Service interface {
	// Apply moves ownership of a paid reservation from seller to buyer
	// as one atomic transaction.
	Apply(ctx context.Context, req ApplyRequest) (reservationdomain.Claim, error)
	// Plan validates a prospective transfer without mutating anything.
	Plan(ctx context.Context, req PlanRequest) (Plan, error)
}

var (
	ErrNotFullyPaid       = errors.New("not_fully_paid")
	ErrAlreadyTransferred = errors.New("already_transferred")
	ErrInvalidAuditBy     = errors.New("invalid_audit_by")
	ErrLockTimeout        = errors.New("lock_timeout")
)

// ParseCopyContact interprets the checkbox-ish values the planning UI
// submits.
func ParseCopyContact(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "2", "true", "yes", "on":
		return true
	default:
		return false
	}
}
