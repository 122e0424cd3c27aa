package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/openconreg/conreg/internal/charge/domain"
	"github.com/openconreg/conreg/internal/charge/processor/fake"
	chargerepository "github.com/openconreg/conreg/internal/charge/repository"
	chargeservice "github.com/openconreg/conreg/internal/charge/service"
	"github.com/openconreg/conreg/internal/clock"
	detailrepository "github.com/openconreg/conreg/internal/detail/repository"
	"github.com/openconreg/conreg/internal/importer/domain"
	membershipdomain "github.com/openconreg/conreg/internal/membership/domain"
	membershiprepository "github.com/openconreg/conreg/internal/membership/repository"
	membershipservice "github.com/openconreg/conreg/internal/membership/service"
	reservationdomain "github.com/openconreg/conreg/internal/reservation/domain"
	reservationrepository "github.com/openconreg/conreg/internal/reservation/repository"
	reservationservice "github.com/openconreg/conreg/internal/reservation/service"
	userdomain "github.com/openconreg/conreg/internal/user/domain"
	userrepository "github.com/openconreg/conreg/internal/user/repository"
	userservice "github.com/openconreg/conreg/internal/user/service"
	"github.com/openconreg/conreg/pkg/money"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestImportRowCreatesFullLedger(t *testing.T) {
	f := newImporterFixture(t)
	ctx := context.Background()

	number := int64(1203)
	asOf := time.Date(2020, 1, 15, 10, 0, 0, 0, time.UTC)
	result := f.svc.ImportRow(ctx, 1, domain.Row{
		Email:            "Member@Example.COM",
		LegalName:        "Pat Member",
		Membership:       "Supporter",
		MembershipNumber: &number,
		ChargeAmount:     money.MustParse("75.00"),
		PaymentReference: "legacy-9917",
		PaymentComment:   "paid by bank transfer",
		Notes:            "converted from presupport",
		Country:          "New Zealand",
		CreatedAt:        asOf,
	})
	if !result.OK {
		t.Fatalf("expected clean import, got errors %v", result.Errors)
	}
	if result.MembershipNumber != 1203 {
		t.Fatalf("expected explicit number 1203, got %d", result.MembershipNumber)
	}

	user, err := f.userSvc.FindByEmail(ctx, "member@example.com")
	if err != nil || user == nil {
		t.Fatalf("expected imported user, got %+v, %v", user, err)
	}

	reservation, err := f.reservationSvc.FindByMembershipNumber(ctx, 1203)
	if err != nil {
		t.Fatalf("find reservation: %v", err)
	}
	if reservation.State != reservationdomain.StatePaid {
		t.Fatalf("imported member must be paid, got %s", reservation.State)
	}

	// The claim and charge are back-dated to the legacy timestamp.
	claim, err := f.reservationSvc.ActiveClaim(ctx, reservation.ID, asOf)
	if err != nil {
		t.Fatalf("active claim: %v", err)
	}
	if claim == nil || claim.UserID != user.ID {
		t.Fatalf("expected imported user's claim active at import time, got %+v", claim)
	}

	charges, err := f.chargeSvc.ListByReservation(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("list charges: %v", err)
	}
	if len(charges) != 1 {
		t.Fatalf("expected 1 recorded charge, got %d", len(charges))
	}
	if !charges[0].CreatedAt.Equal(asOf) {
		t.Fatalf("expected back-dated charge at %s, got %s", asOf, charges[0].CreatedAt)
	}
	if charges[0].Reference != "legacy-9917" {
		t.Fatalf("unexpected reference %q", charges[0].Reference)
	}

	notes, err := f.userSvc.Notes(ctx, user.ID)
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(notes) != 1 || !strings.Contains(notes[0].Content, "presupport") {
		t.Fatalf("expected the legacy note on the user, got %+v", notes)
	}

	detail, err := f.detailRepo.FindByClaim(ctx, f.db, claim.ID)
	if err != nil {
		t.Fatalf("find detail: %v", err)
	}
	if detail == nil || detail.LegalName != "Pat Member" {
		t.Fatalf("expected contact detail on the claim, got %+v", detail)
	}
}

func TestImportRowInvalidEmail(t *testing.T) {
	f := newImporterFixture(t)

	result := f.svc.ImportRow(context.Background(), 1, domain.Row{
		Email:      "not-an-email",
		Membership: "supporting",
	})
	if result.OK {
		t.Fatal("expected failed row")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "invalid email") {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
}

func TestImportRowUnknownMembership(t *testing.T) {
	f := newImporterFixture(t)

	result := f.svc.ImportRow(context.Background(), 1, domain.Row{
		Email:      "member@example.com",
		Membership: "galactic_patron",
	})
	if result.OK {
		t.Fatal("expected failed row")
	}
	if !strings.Contains(result.Errors[0], "unknown membership") {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
}

// collidingReservations reports every reserve as a duplicate membership
// number, standing in for rows created out of band.
type collidingReservations struct {
	reservationdomain.Service
}

func (collidingReservations) Reserve(context.Context, reservationdomain.ReserveRequest) (reservationdomain.Reservation, error) {
	return reservationdomain.Reservation{}, reservationdomain.ErrNumberTaken
}

func TestImportRowAllocatedNumberCollision(t *testing.T) {
	f := newImporterFixture(t)

	p := f.params
	p.Reservations = collidingReservations{f.reservationSvc}
	svc := New(p)

	// No explicit number: the collision message must not rely on one.
	result := svc.ImportRow(context.Background(), 1, domain.Row{
		Email:      "member@example.com",
		Membership: "supporting",
	})
	if result.OK {
		t.Fatal("expected failed row")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "already taken") {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
}

func TestImportAllContinuesPastFailures(t *testing.T) {
	f := newImporterFixture(t)

	n1, n2 := int64(500), int64(500)
	rows := []domain.Row{
		{Email: "bad", Membership: "supporting"},
		{Email: "one@example.com", Membership: "supporting", MembershipNumber: &n1},
		{Email: "two@example.com", Membership: "supporting", MembershipNumber: &n2},
	}
	results := f.svc.ImportAll(context.Background(), rows)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].OK {
		t.Fatal("row 1 must fail on the bad email")
	}
	if !results[1].OK {
		t.Fatalf("row 2 should import, got %v", results[1].Errors)
	}
	if results[2].OK {
		t.Fatal("row 3 must fail on the duplicate number")
	}
	if !strings.Contains(results[2].Errors[0], "already taken") {
		t.Fatalf("unexpected errors %v", results[2].Errors)
	}
}

type importerFixture struct {
	db             *gorm.DB
	svc            domain.Service
	params         Params
	userSvc        userdomain.Service
	reservationSvc reservationdomain.Service
	chargeSvc      chargedomain.Service
	detailRepo     detailrepository.Repository
}

func newImporterFixture(t *testing.T) *importerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	prepareImporterSchema(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	userSvc := userservice.New(userservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  userrepository.Provide(),
	})
	membershipSvc := membershipservice.New(membershipservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  membershiprepository.Provide(),
	})
	reservationSvc := reservationservice.New(reservationservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          reservationrepository.Provide(),
		MembershipSvc: membershipSvc,
	})
	chargeSvc := chargeservice.New(chargeservice.Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           clk,
		Repo:            chargerepository.Provide(),
		ReservationRepo: reservationrepository.Provide(),
		MembershipRepo:  membershiprepository.Provide(),
		Processor:       fake.New(),
	})
	detailRepo := detailrepository.Provide()

	params := Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Users:        userSvc,
		Memberships:  membershipSvc,
		Reservations: reservationSvc,
		Charges:      chargeSvc,
		DetailRepo:   detailRepo,
	}
	svc := New(params)

	// Tier catalogue reaching back far enough for back-dated rows.
	if _, err := membershipSvc.Create(context.Background(), membershipdomain.CreateMembershipRequest{
		Name:       "supporting",
		Price:      money.MustParse("75.00"),
		ActiveFrom: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed supporting tier: %v", err)
	}

	return &importerFixture{
		db:             db,
		svc:            svc,
		params:         params,
		userSvc:        userSvc,
		reservationSvc: reservationSvc,
		chargeSvc:      chargeSvc,
		detailRepo:     detailRepo,
	}
}

func prepareImporterSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE users (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_users_email ON users (email)`,
		`CREATE TABLE notes (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE memberships (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			price BIGINT NOT NULL,
			active_from TIMESTAMP NOT NULL,
			active_to TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE membership_counters (
			id BIGINT PRIMARY KEY,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE reservations (
			id BIGINT PRIMARY KEY,
			membership_number BIGINT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_reservations_membership_number ON reservations (membership_number)`,
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			reservation_id BIGINT NOT NULL,
			membership_id BIGINT NOT NULL,
			active_from TIMESTAMP NOT NULL,
			active_to TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE claims (
			id BIGINT PRIMARY KEY,
			reservation_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			active_from TIMESTAMP NOT NULL,
			active_to TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_claims_one_active ON claims (reservation_id) WHERE active_to IS NULL`,
		`CREATE TABLE charges (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			reservation_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			state TEXT NOT NULL,
			reference TEXT,
			comment TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE details (
			id BIGINT PRIMARY KEY,
			claim_id BIGINT NOT NULL,
			legal_name TEXT NOT NULL,
			preferred_first_name TEXT,
			preferred_last_name TEXT,
			badge_title TEXT,
			badge_subtitle TEXT,
			address_line_1 TEXT,
			address_line_2 TEXT,
			city TEXT,
			province TEXT,
			postal TEXT,
			country TEXT,
			publication_format TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
}
