package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/clock"
	"github.com/openconreg/conreg/internal/config"
	membershipdomain "github.com/openconreg/conreg/internal/membership/domain"
	membershiprepository "github.com/openconreg/conreg/internal/membership/repository"
	membershipservice "github.com/openconreg/conreg/internal/membership/service"
	reservationdomain "github.com/openconreg/conreg/internal/reservation/domain"
	reservationrepository "github.com/openconreg/conreg/internal/reservation/repository"
	reservationservice "github.com/openconreg/conreg/internal/reservation/service"
	"github.com/openconreg/conreg/internal/transfer/domain"
	userdomain "github.com/openconreg/conreg/internal/user/domain"
	userrepository "github.com/openconreg/conreg/internal/user/repository"
	userservice "github.com/openconreg/conreg/internal/user/service"
	"github.com/openconreg/conreg/pkg/money"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const supportEmail = "registration@conflux.example"

func TestApplySwapsClaims(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	buyer := f.createUser(t, "buyer@example.com")
	reservation := f.paidReservation(t, seller.ID)

	f.clk.Advance(time.Hour)
	claim, err := f.svc.Apply(ctx, domain.ApplyRequest{
		ReservationID: reservation.ID,
		FromUserID:    seller.ID,
		ToUserID:      buyer.ID,
		AuditBy:       "Operator@Example.COM",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if claim.UserID != buyer.ID {
		t.Fatalf("expected buyer to hold the new claim, got %s", claim.UserID)
	}

	active, err := f.reservationSvc.ActiveClaim(ctx, reservation.ID, f.clk.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("active claim: %v", err)
	}
	if active == nil || active.UserID != buyer.ID {
		t.Fatalf("expected buyer's claim active after transfer, got %+v", active)
	}

	// The seller's claim is closed, not deleted: at the instant just
	// before the transfer it still answers who owned the membership.
	previous, err := f.reservationSvc.ActiveClaim(ctx, reservation.ID, f.clk.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("historical claim: %v", err)
	}
	if previous == nil || previous.UserID != seller.ID {
		t.Fatalf("expected seller's claim in history, got %+v", previous)
	}
}

func TestApplyWritesAuditNotes(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	buyer := f.createUser(t, "buyer@example.com")
	reservation := f.paidReservation(t, seller.ID)

	if _, err := f.svc.Apply(ctx, domain.ApplyRequest{
		ReservationID: reservation.ID,
		FromUserID:    seller.ID,
		ToUserID:      buyer.ID,
		AuditBy:       "operator@example.com",
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	sellerNotes, err := f.userSvc.Notes(ctx, seller.ID)
	if err != nil {
		t.Fatalf("seller notes: %v", err)
	}
	if len(sellerNotes) != 1 {
		t.Fatalf("expected 1 note on the seller, got %d", len(sellerNotes))
	}
	for _, want := range []string{
		fmt.Sprintf("#%d", reservation.MembershipNumber),
		"buyer@example.com",
		"operator@example.com",
		supportEmail,
	} {
		if !strings.Contains(sellerNotes[0].Content, want) {
			t.Fatalf("seller note %q missing %q", sellerNotes[0].Content, want)
		}
	}

	buyerNotes, err := f.userSvc.Notes(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("buyer notes: %v", err)
	}
	if len(buyerNotes) != 1 {
		t.Fatalf("expected 1 note on the buyer, got %d", len(buyerNotes))
	}
	if !strings.Contains(buyerNotes[0].Content, "seller@example.com") {
		t.Fatalf("buyer note %q missing the seller address", buyerNotes[0].Content)
	}
}

func TestApplySecondTransferFails(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	firstBuyer := f.createUser(t, "first@example.com")
	secondBuyer := f.createUser(t, "second@example.com")
	reservation := f.paidReservation(t, seller.ID)

	f.clk.Advance(time.Hour)
	if _, err := f.svc.Apply(ctx, domain.ApplyRequest{
		ReservationID: reservation.ID,
		FromUserID:    seller.ID,
		ToUserID:      firstBuyer.ID,
		AuditBy:       "operator@example.com",
	}); err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	// The seller no longer holds an active claim, so selling the same
	// membership again fails and changes nothing.
	f.clk.Advance(time.Minute)
	_, err := f.svc.Apply(ctx, domain.ApplyRequest{
		ReservationID: reservation.ID,
		FromUserID:    seller.ID,
		ToUserID:      secondBuyer.ID,
		AuditBy:       "operator@example.com",
	})
	if !errors.Is(err, domain.ErrAlreadyTransferred) {
		t.Fatalf("expected ErrAlreadyTransferred, got %v", err)
	}

	active, err := f.reservationSvc.ActiveClaim(ctx, reservation.ID, f.clk.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("active claim: %v", err)
	}
	if active == nil || active.UserID != firstBuyer.ID {
		t.Fatalf("first buyer must keep the membership, got %+v", active)
	}
}

func TestConcurrentTransfersOnlyOneSucceeds(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	firstBuyer := f.createUser(t, "first@example.com")
	secondBuyer := f.createUser(t, "second@example.com")
	reservation := f.paidReservation(t, seller.ID)
	f.clk.Advance(time.Hour)

	buyers := []snowflake.ID{firstBuyer.ID, secondBuyer.ID}
	results := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, buyer := range buyers {
		wg.Add(1)
		go func(i int, buyer snowflake.ID) {
			defer wg.Done()
			_, results[i] = f.svc.Apply(ctx, domain.ApplyRequest{
				ReservationID: reservation.ID,
				FromUserID:    seller.ID,
				ToUserID:      buyer,
				AuditBy:       "operator@example.com",
			})
		}(i, buyer)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadyTransferred):
			rejected++
		default:
			t.Fatalf("unexpected transfer error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d rejections", succeeded, rejected)
	}

	var activeClaims int64
	if err := f.db.Raw(
		`SELECT COUNT(1) FROM claims WHERE reservation_id = ? AND active_to IS NULL`,
		reservation.ID,
	).Scan(&activeClaims).Error; err != nil {
		t.Fatalf("count active claims: %v", err)
	}
	if activeClaims != 1 {
		t.Fatalf("expected exactly 1 active claim, got %d", activeClaims)
	}

	active, err := f.reservationSvc.ActiveClaim(ctx, reservation.ID, f.clk.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("active claim: %v", err)
	}
	if active == nil || active.UserID == seller.ID {
		t.Fatalf("expected a buyer to hold the membership, got %+v", active)
	}
}

func TestApplyRequiresFullyPaid(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	buyer := f.createUser(t, "buyer@example.com")
	reservation := f.installmentReservation(t, seller.ID)

	_, err := f.svc.Apply(ctx, domain.ApplyRequest{
		ReservationID: reservation.ID,
		FromUserID:    seller.ID,
		ToUserID:      buyer.ID,
		AuditBy:       "operator@example.com",
	})
	if !errors.Is(err, domain.ErrNotFullyPaid) {
		t.Fatalf("expected ErrNotFullyPaid, got %v", err)
	}
}

func TestApplyValidatesAuditBy(t *testing.T) {
	f := newTransferFixture(t)

	_, err := f.svc.Apply(context.Background(), domain.ApplyRequest{
		ReservationID: f.node.Generate(),
		FromUserID:    f.node.Generate(),
		ToUserID:      f.node.Generate(),
		AuditBy:       "not-an-email",
	})
	if !errors.Is(err, domain.ErrInvalidAuditBy) {
		t.Fatalf("expected ErrInvalidAuditBy, got %v", err)
	}
}

func TestPlanPreviewsWithoutPersisting(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	reservation := f.paidReservation(t, seller.ID)

	plan, err := f.svc.Plan(ctx, domain.PlanRequest{
		ReservationID: reservation.ID,
		NewOwner:      "NewOwner@Example.COM",
		CopyContact:   "1",
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.Valid() {
		t.Fatalf("expected valid plan, got errors %v", plan.Errors)
	}
	if plan.NewOwner != "newowner@example.com" {
		t.Fatalf("expected normalized new owner, got %q", plan.NewOwner)
	}
	if plan.ToUser != nil {
		t.Fatal("unknown buyer must not be resolved to a user")
	}
	if plan.FromUser == nil || plan.FromUser.ID != seller.ID {
		t.Fatalf("expected seller as current holder, got %+v", plan.FromUser)
	}
	if !plan.CopyContact {
		t.Fatal("copy contact flag lost")
	}

	// Planning never creates the buyer.
	if user, err := f.userSvc.FindByEmail(ctx, "newowner@example.com"); err != nil || user != nil {
		t.Fatalf("planning must not persist users, got %+v, %v", user, err)
	}
}

func TestPlanCollectsErrors(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	unpaid := f.installmentReservation(t, seller.ID)

	plan, err := f.svc.Plan(ctx, domain.PlanRequest{
		ReservationID: unpaid.ID,
		NewOwner:      "not-an-email",
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Valid() {
		t.Fatal("expected an invalid plan")
	}
	if len(plan.Errors) != 2 {
		t.Fatalf("expected email and payment errors, got %v", plan.Errors)
	}

	missing, err := f.svc.Plan(ctx, domain.PlanRequest{
		ReservationID: f.node.Generate(),
		NewOwner:      "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("plan missing: %v", err)
	}
	if missing.Valid() || missing.Reservation != nil {
		t.Fatalf("expected reservation-not-found plan, got %+v", missing)
	}
}

type transferFixture struct {
	db             *gorm.DB
	node           *snowflake.Node
	clk            *clock.FakeClock
	svc            domain.Service
	userSvc        userdomain.Service
	membershipSvc  membershipdomain.Service
	reservationSvc reservationdomain.Service
}

func (f *transferFixture) createUser(t *testing.T, email string) userdomain.User {
	t.Helper()
	user, err := f.userSvc.FindOrCreate(context.Background(), email)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}

func (f *transferFixture) paidReservation(t *testing.T, ownerID snowflake.ID) reservationdomain.Reservation {
	t.Helper()
	reservation := f.installmentReservation(t, ownerID)
	if err := f.reservationSvc.MarkPaid(context.Background(), reservation.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	paid, err := f.reservationSvc.FindByID(context.Background(), reservation.ID)
	if err != nil {
		t.Fatalf("reload reservation: %v", err)
	}
	return paid
}

func (f *transferFixture) installmentReservation(t *testing.T, ownerID snowflake.ID) reservationdomain.Reservation {
	t.Helper()
	ctx := context.Background()
	membership, err := f.membershipSvc.FindByName(ctx, "adult", f.clk.Now())
	if err != nil {
		t.Fatalf("find adult tier: %v", err)
	}
	reservation, err := f.reservationSvc.Reserve(ctx, reservationdomain.ReserveRequest{
		MembershipID: membership.ID,
		CustomerID:   ownerID,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return reservation
}

func newTransferFixture(t *testing.T) *transferFixture {
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

	prepareTransferSchema(t, db)

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
	svc := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           clk,
		Cfg:             config.Config{SupportEmail: supportEmail},
		ReservationRepo: reservationrepository.Provide(),
		UserRepo:        userrepository.Provide(),
	})

	if _, err := membershipSvc.Create(context.Background(), membershipdomain.CreateMembershipRequest{
		Name:       "adult",
		Price:      money.MustParse("370.00"),
		ActiveFrom: clk.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed adult tier: %v", err)
	}

	return &transferFixture{
		db:             db,
		node:           node,
		clk:            clk,
		svc:            svc,
		userSvc:        userSvc,
		membershipSvc:  membershipSvc,
		reservationSvc: reservationSvc,
	}
}

func prepareTransferSchema(t *testing.T, db *gorm.DB) {
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
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
}
