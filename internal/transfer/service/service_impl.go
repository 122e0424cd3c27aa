package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/clock"
	"github.com/openconreg/conreg/internal/config"
	obsmetrics "github.com/openconreg/conreg/internal/observability/metrics"
	reservationdomain "github.com/openconreg/conreg/internal/reservation/domain"
	"github.com/openconreg/conreg/internal/transfer/domain"
	userdomain "github.com/openconreg/conreg/internal/user/domain"
	userservice "github.com/openconreg/conreg/internal/user/service"
	"github.com/openconreg/conreg/pkg/db"
	"github.com/openconreg/conreg/pkg/temporal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Cfg             config.Config
	ReservationRepo reservationdomain.Repository
	UserRepo        userdomain.Repository
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	cfg             config.Config
	reservationRepo reservationdomain.Repository
	userRepo        userdomain.Repository
	obsMetrics      *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("transfer.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		cfg:             p.Cfg,
		reservationRepo: p.ReservationRepo,
		userRepo:        p.UserRepo,
		obsMetrics:      p.ObsMetrics,
	}
}

// Apply transfers ownership in one transaction. The preconditions run
// inside the same transaction as the mutation: under the reservation
// row lock, the second of two near-simultaneous transfers either blocks
// until the first commits and then finds no active claim left for the
// seller, or sees the first's effect directly. Either way it fails with
// ErrAlreadyTransferred instead of double-transferring.
func (s *Service) Apply(ctx context.Context, req domain.ApplyRequest) (reservationdomain.Claim, error) {
	auditBy, err := userservice.NormalizeEmail(req.AuditBy)
	if err != nil {
		return reservationdomain.Claim{}, domain.ErrInvalidAuditBy
	}

	now := s.clock.Now()
	var buyerClaim reservationdomain.Claim

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservation, err := s.reservationRepo.LockByID(ctx, tx, req.ReservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return reservationdomain.ErrNotFound
		}
		if !reservation.Transferable() {
			return domain.ErrNotFullyPaid
		}

		sellerClaim, err := s.reservationRepo.ActiveClaimFor(ctx, tx, req.ReservationID, req.FromUserID, now)
		if err != nil {
			return err
		}
		if sellerClaim == nil {
			return domain.ErrAlreadyTransferred
		}

		seller, err := s.userRepo.FindByID(ctx, tx, req.FromUserID)
		if err != nil {
			return err
		}
		buyer, err := s.userRepo.FindByID(ctx, tx, req.ToUserID)
		if err != nil {
			return err
		}
		if seller == nil || buyer == nil {
			return userdomain.ErrNotFound
		}

		if err := s.reservationRepo.CloseClaim(ctx, tx, sellerClaim.ID, now); err != nil {
			return err
		}

		buyerClaim = reservationdomain.Claim{
			ID:            s.genID.Generate(),
			ReservationID: req.ReservationID,
			UserID:        req.ToUserID,
			Window:        temporal.Open(now),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.reservationRepo.InsertClaim(ctx, tx, &buyerClaim); err != nil {
			return err
		}

		// Second line of defense behind the partial unique index: the
		// swap must leave exactly one active claim.
		active, err := s.reservationRepo.CountActiveClaims(ctx, tx, req.ReservationID, now.Add(1))
		if err != nil {
			return err
		}
		if active != 1 {
			return reservationdomain.ErrClaimConflict
		}

		return s.writeAuditNotes(ctx, tx, reservation, seller, buyer, auditBy, now)
	})
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			err = domain.ErrLockTimeout
		}
		s.obsMetrics.RecordTransfer(ctx, "failed")
		return reservationdomain.Claim{}, err
	}

	s.log.Info("membership transferred",
		zap.String("reservation_id", req.ReservationID.String()),
		zap.String("from", req.FromUserID.String()),
		zap.String("to", req.ToUserID.String()),
		zap.String("audit_by", auditBy),
	)
	s.obsMetrics.RecordTransfer(ctx, "successful")
	return buyerClaim, nil
}

// writeAuditNotes leaves the provenance trail on both parties, in the
// same transaction as the claim swap.
func (s *Service) writeAuditNotes(
	ctx context.Context,
	tx *gorm.DB,
	reservation *reservationdomain.Reservation,
	seller *userdomain.User,
	buyer *userdomain.User,
	auditBy string,
	now time.Time,
) error {
	metadata := datatypes.JSONMap{
		"reservation_id":    reservation.ID.String(),
		"membership_number": reservation.MembershipNumber,
		"audit_by":          auditBy,
	}

	sellerNote := userdomain.Note{
		ID:     s.genID.Generate(),
		UserID: seller.ID,
		Content: fmt.Sprintf(
			"Membership #%d transferred to %s, authorized by %s. Questions? Contact %s.",
			reservation.MembershipNumber, buyer.Email, auditBy, s.cfg.SupportEmail,
		),
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.userRepo.InsertNote(ctx, tx, &sellerNote); err != nil {
		return err
	}

	buyerNote := userdomain.Note{
		ID:     s.genID.Generate(),
		UserID: buyer.ID,
		Content: fmt.Sprintf(
			"Membership #%d transferred from %s, authorized by %s. Questions? Contact %s.",
			reservation.MembershipNumber, seller.Email, auditBy, s.cfg.SupportEmail,
		),
		Metadata:  metadata,
		CreatedAt: now,
	}
	return s.userRepo.InsertNote(ctx, tx, &buyerNote)
}

// Plan previews a transfer without mutating any ledger state, so the
// calling UI can show consequences before committing. A buyer with no
// account is reported with a nil ToUser and provisioned only by Apply's
// caller.
func (s *Service) Plan(ctx context.Context, req domain.PlanRequest) (domain.Plan, error) {
	plan := domain.Plan{
		CopyContact: domain.ParseCopyContact(req.CopyContact),
	}

	newOwner, err := userservice.NormalizeEmail(req.NewOwner)
	if err != nil {
		plan.Errors = append(plan.Errors, "new owner email address is invalid")
	} else {
		plan.NewOwner = newOwner

		buyer, err := s.userRepo.FindByEmail(ctx, s.db, newOwner)
		if err != nil {
			return domain.Plan{}, err
		}
		plan.ToUser = buyer
	}

	if req.ReservationID == 0 {
		plan.Errors = append(plan.Errors, "reservation is required")
		return plan, nil
	}

	reservation, err := s.reservationRepo.FindByID(ctx, s.db, req.ReservationID)
	if err != nil {
		return domain.Plan{}, err
	}
	if reservation == nil {
		plan.Errors = append(plan.Errors, "reservation not found")
		return plan, nil
	}
	plan.Reservation = reservation

	if !reservation.Transferable() {
		plan.Errors = append(plan.Errors, fmt.Sprintf(
			"membership #%d is not fully paid and cannot be transferred",
			reservation.MembershipNumber,
		))
	}

	claim, err := s.reservationRepo.ActiveClaim(ctx, s.db, reservation.ID, s.clock.Now())
	if err != nil {
		return domain.Plan{}, err
	}
	if claim == nil {
		plan.Errors = append(plan.Errors, "no one currently holds this membership")
		return plan, nil
	}

	fromUser, err := s.userRepo.FindByID(ctx, s.db, claim.UserID)
	if err != nil {
		return domain.Plan{}, err
	}
	plan.FromUser = fromUser

	return plan, nil
}
