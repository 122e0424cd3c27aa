package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/openconreg/conreg/internal/charge/domain"
	"github.com/openconreg/conreg/internal/clock"
	detaildomain "github.com/openconreg/conreg/internal/detail/domain"
	detailrepository "github.com/openconreg/conreg/internal/detail/repository"
	"github.com/openconreg/conreg/internal/importer/domain"
	membershipdomain "github.com/openconreg/conreg/internal/membership/domain"
	reservationdomain "github.com/openconreg/conreg/internal/reservation/domain"
	userdomain "github.com/openconreg/conreg/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// membershipLookup translates tier names as legacy exports spelled them
// into the names the catalogue uses today. Lookups are case-insensitive
// and current names pass through unchanged.
var membershipLookup = map[string]string{
	"youth":       "young_adult",
	"young adult": "young_adult",
	"first":       "adult",
	"full":        "adult",
	"attending":   "adult",
	"kid in tow":  "child",
	"child":       "child",
	"supporter":   "supporting",
	"voter":       "supporting",
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Users        userdomain.Service
	Memberships  membershipdomain.Service
	Reservations reservationdomain.Service
	Charges      chargedomain.Service
	DetailRepo   detailrepository.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	users        userdomain.Service
	memberships  membershipdomain.Service
	reservations reservationdomain.Service
	charges      chargedomain.Service
	detailRepo   detailrepository.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("importer.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		users:        p.Users,
		memberships:  p.Memberships,
		reservations: p.Reservations,
		charges:      p.Charges,
		detailRepo:   p.DetailRepo,
	}
}

func (s *Service) ImportAll(ctx context.Context, rows []domain.Row) []domain.RowResult {
	results := make([]domain.RowResult, 0, len(rows))
	imported := 0
	for i, row := range rows {
		result := s.ImportRow(ctx, i+1, row)
		if result.OK {
			imported++
		}
		results = append(results, result)
	}
	s.log.Info("import finished",
		zap.Int("rows", len(rows)),
		zap.Int("imported", imported),
		zap.Int("failed", len(rows)-imported),
	)
	return results
}

func (s *Service) ImportRow(ctx context.Context, line int, row domain.Row) domain.RowResult {
	result := domain.RowResult{Line: line}
	fail := func(format string, args ...any) domain.RowResult {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		s.log.Warn("import row failed",
			zap.Int("line", line),
			zap.Strings("errors", result.Errors),
		)
		return result
	}

	asOf := row.CreatedAt
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}

	user, err := s.users.FindOrCreate(ctx, row.Email)
	if err != nil {
		if errors.Is(err, userdomain.ErrInvalidEmail) {
			return fail("invalid email %q", row.Email)
		}
		return fail("resolving user %q: %v", row.Email, err)
	}
	result.UserID = user.ID

	if strings.TrimSpace(row.Notes) != "" {
		_, err = s.users.AddNote(ctx, user.ID, row.Notes, map[string]any{"source": "import"})
		if err != nil {
			return fail("attaching note: %v", err)
		}
	}

	membership, err := s.resolveMembership(ctx, row.Membership, asOf)
	if err != nil {
		return fail("unknown membership %q at %s", row.Membership, asOf.Format("2006-01-02"))
	}

	reservation, err := s.reservations.Reserve(ctx, reservationdomain.ReserveRequest{
		MembershipID:     membership.ID,
		CustomerID:       user.ID,
		MembershipNumber: row.MembershipNumber,
		AsOf:             asOf,
	})
	if err != nil {
		switch {
		case errors.Is(err, reservationdomain.ErrNumberTaken):
			// The number can also collide when it was allocated rather
			// than explicit, e.g. rows inserted out of band.
			if row.MembershipNumber != nil {
				return fail("membership number %d is already taken", *row.MembershipNumber)
			}
			return fail("allocated membership number is already taken")
		case errors.Is(err, reservationdomain.ErrInvalidNumber):
			return fail("membership number %d is below the floor", *row.MembershipNumber)
		default:
			return fail("reserving: %v", err)
		}
	}
	result.ReservationID = reservation.ID
	result.MembershipNumber = reservation.MembershipNumber

	if err := s.attachDetail(ctx, reservation.ID, row, asOf); err != nil {
		return fail("attaching details: %v", err)
	}

	if !row.ChargeAmount.IsZero() {
		_, err = s.charges.Record(ctx, chargedomain.RecordRequest{
			ReservationID: reservation.ID,
			UserID:        user.ID,
			Amount:        row.ChargeAmount,
			Reference:     row.PaymentReference,
			Comment:       row.PaymentComment,
			AsOf:          asOf,
		})
		if err != nil {
			return fail("recording payment: %v", err)
		}
	}

	// Legacy exports only contain members in good standing, so the row
	// ends up paid even when its payment trail is incomplete.
	if err := s.reservations.MarkPaid(ctx, reservation.ID); err != nil {
		return fail("marking paid: %v", err)
	}

	result.OK = true
	return result
}

func (s *Service) resolveMembership(ctx context.Context, name string, asOf time.Time) (membershipdomain.Membership, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := membershipLookup[normalized]; ok {
		normalized = canonical
	}
	return s.memberships.FindByName(ctx, normalized, asOf)
}

func (s *Service) attachDetail(ctx context.Context, reservationID snowflake.ID, row domain.Row, asOf time.Time) error {
	claim, err := s.reservations.ActiveClaim(ctx, reservationID, asOf)
	if err != nil {
		return err
	}
	if claim == nil {
		return reservationdomain.ErrClaimConflict
	}

	format := strings.TrimSpace(row.PublicationFormat)
	if format == "" {
		format = detaildomain.PaperPubsElectronic
	}
	legalName := strings.TrimSpace(row.LegalName)
	if legalName == "" {
		legalName = row.Email
	}

	detail := detaildomain.Detail{
		ID:                 s.genID.Generate(),
		ClaimID:            claim.ID,
		LegalName:          legalName,
		PreferredFirstName: row.PreferredFirstName,
		PreferredLastName:  row.PreferredLastName,
		BadgeTitle:         row.BadgeTitle,
		BadgeSubtitle:      row.BadgeSubtitle,
		AddressLine1:       row.AddressLine1,
		AddressLine2:       row.AddressLine2,
		City:               row.City,
		Province:           row.Province,
		Postal:             row.Postal,
		Country:            row.Country,
		PublicationFormat:  format,
		CreatedAt:          asOf,
		UpdatedAt:          asOf,
	}
	if err := detail.Validate(true); err != nil {
		return err
	}
	return s.detailRepo.Insert(ctx, s.db, &detail)
}
