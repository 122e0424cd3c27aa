package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/openconreg/conreg/internal/charge/domain"
	"github.com/openconreg/conreg/internal/clock"
	membershipdomain "github.com/openconreg/conreg/internal/membership/domain"
	obsmetrics "github.com/openconreg/conreg/internal/observability/metrics"
	reservationdomain "github.com/openconreg/conreg/internal/reservation/domain"
	"github.com/openconreg/conreg/pkg/db"
	"github.com/openconreg/conreg/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            chargedomain.Repository
	ReservationRepo reservationdomain.Repository
	MembershipRepo  membershipdomain.Repository
	Processor       chargedomain.Processor
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            chargedomain.Repository
	reservationRepo reservationdomain.Repository
	membershipRepo  membershipdomain.Repository
	processor       chargedomain.Processor
	obsMetrics      *obsmetrics.Metrics
}

func New(p Params) chargedomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("charge.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		reservationRepo: p.ReservationRepo,
		membershipRepo:  p.MembershipRepo,
		processor:       p.Processor,
		obsMetrics:      p.ObsMetrics,
	}
}

// Charge runs one payment attempt as a single transaction. The
// reservation row lock serializes balance computation per reservation,
// so two concurrent partial payments can never both read the same stale
// balance. The processor call happens under that lock, before the
// terminal commit, so a settled processor charge is always written in
// the same transaction as the state change it causes.
//
// A decline is a controlled outcome: the failed charge commits and the
// returned error unwraps to *DeclineError.
func (s *Service) Charge(ctx context.Context, req chargedomain.ChargeRequest) (chargedomain.Charge, error) {
	if req.UserID == 0 {
		return chargedomain.Charge{}, reservationdomain.ErrInvalidCustomer
	}

	now := s.clock.Now()
	var (
		charge  chargedomain.Charge
		decline *chargedomain.DeclineError
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		remaining, err := s.remainingBalance(ctx, tx, req.ReservationID, now)
		if err != nil {
			return err
		}

		amount := remaining
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount <= 0 {
			if req.Amount != nil && *req.Amount > 0 {
				return chargedomain.ErrOverpay
			}
			return chargedomain.ErrInvalidAmount
		}
		if amount > remaining {
			return chargedomain.ErrOverpay
		}

		result, procErr := s.processor.Charge(ctx, chargedomain.ProcessorRequest{
			PaymentMethod: req.PaymentMethod,
			Amount:        amount,
			Description:   fmt.Sprintf("membership payment, reservation %s", req.ReservationID),
		})
		if procErr != nil {
			var declined *chargedomain.DeclineError
			if !errors.As(procErr, &declined) {
				// Transport or processor failure with no definite
				// outcome: abort, nothing recorded.
				return procErr
			}

			decline = declined
			charge = chargedomain.Charge{
				ID:            s.genID.Generate(),
				UserID:        req.UserID,
				ReservationID: req.ReservationID,
				Amount:        amount,
				State:         chargedomain.ChargeFailed,
				Reference:     declined.Reference,
				Comment:       fmt.Sprintf("Declined: %s", declined.Reason),
				CreatedAt:     now,
			}
			// The failed attempt commits; reservation state is left
			// untouched.
			return s.repo.Insert(ctx, tx, &charge)
		}

		charge = chargedomain.Charge{
			ID:            s.genID.Generate(),
			UserID:        req.UserID,
			ReservationID: req.ReservationID,
			Amount:        amount,
			State:         chargedomain.ChargeSuccessful,
			Reference:     result.Reference,
			CreatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &charge); err != nil {
			return err
		}

		return s.applyState(ctx, tx, req.ReservationID, remaining-amount, now)
	})
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			err = chargedomain.ErrLockTimeout
		}
		s.obsMetrics.RecordChargeAttempt(ctx, "rejected")
		return chargedomain.Charge{}, err
	}

	if decline != nil {
		s.log.Info("charge declined",
			zap.String("reservation_id", req.ReservationID.String()),
			zap.String("amount", charge.Amount.String()),
			zap.String("reason", decline.Reason),
		)
		s.obsMetrics.RecordChargeAttempt(ctx, "failed")
		return charge, decline
	}

	s.log.Info("charge settled",
		zap.String("reservation_id", req.ReservationID.String()),
		zap.String("amount", charge.Amount.String()),
	)
	s.obsMetrics.RecordChargeAttempt(ctx, "successful")
	return charge, nil
}

// Record writes an already-settled charge without touching the
// processor. Import rows and at-the-door cash go through here; the
// timestamp is the caller's, not import time.
func (s *Service) Record(ctx context.Context, req chargedomain.RecordRequest) (chargedomain.Charge, error) {
	if req.UserID == 0 {
		return chargedomain.Charge{}, reservationdomain.ErrInvalidCustomer
	}
	if req.Amount < 0 {
		return chargedomain.Charge{}, chargedomain.ErrInvalidAmount
	}

	asAt := req.AsOf
	if asAt.IsZero() {
		asAt = s.clock.Now()
	}
	asAt = asAt.UTC()

	var charge chargedomain.Charge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		remaining, err := s.remainingBalance(ctx, tx, req.ReservationID, asAt)
		if err != nil {
			return err
		}

		charge = chargedomain.Charge{
			ID:            s.genID.Generate(),
			UserID:        req.UserID,
			ReservationID: req.ReservationID,
			Amount:        req.Amount,
			State:         chargedomain.ChargeSuccessful,
			Reference:     req.Reference,
			Comment:       req.Comment,
			CreatedAt:     asAt,
		}
		if err := s.repo.Insert(ctx, tx, &charge); err != nil {
			return err
		}

		left := remaining - req.Amount
		if left < 0 {
			// Historical data can disagree with the catalogue price;
			// keep the record but flag the discrepancy.
			s.log.Warn("recorded charge exceeds remaining balance",
				zap.String("reservation_id", req.ReservationID.String()),
				zap.String("amount", req.Amount.String()),
				zap.String("remaining", remaining.String()),
			)
			left = 0
		}
		return s.applyState(ctx, tx, req.ReservationID, left, asAt)
	})
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			return chargedomain.Charge{}, chargedomain.ErrLockTimeout
		}
		return chargedomain.Charge{}, err
	}
	return charge, nil
}

func (s *Service) Balance(ctx context.Context, reservationID snowflake.ID) (money.Amount, error) {
	var remaining money.Amount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		remaining, err = s.remainingBalance(ctx, tx, reservationID, s.clock.Now())
		return err
	})
	return remaining, err
}

func (s *Service) ListByReservation(ctx context.Context, reservationID snowflake.ID) ([]*chargedomain.Charge, error) {
	return s.repo.ListByReservation(ctx, s.db, reservationID)
}

// remainingBalance locks the reservation row and derives the balance:
// the active order's membership price (the price the purchase began
// under, not today's) minus the sum of settled charges. A negative
// remainder means the books disagree with the catalogue and is a data
// error, not something to accept quietly.
func (s *Service) remainingBalance(ctx context.Context, tx *gorm.DB, reservationID snowflake.ID, at time.Time) (money.Amount, error) {
	reservation, err := s.reservationRepo.LockByID(ctx, tx, reservationID)
	if err != nil {
		return 0, err
	}
	if reservation == nil {
		return 0, reservationdomain.ErrNotFound
	}
	if reservation.State == reservationdomain.StateDisabled {
		return 0, chargedomain.ErrReservationDisabled
	}

	order, err := s.reservationRepo.ActiveOrder(ctx, tx, reservationID, at)
	if err != nil {
		return 0, err
	}
	if order == nil {
		return 0, chargedomain.ErrNoActiveOrder
	}

	membership, err := s.membershipRepo.FindByID(ctx, tx, order.MembershipID)
	if err != nil {
		return 0, err
	}
	if membership == nil {
		return 0, membershipdomain.ErrNotFound
	}

	paid, err := s.repo.SumSuccessful(ctx, tx, reservationID)
	if err != nil {
		return 0, err
	}

	remaining := membership.Price - paid
	if remaining < 0 {
		return 0, fmt.Errorf("settled charges %s exceed membership price %s for reservation %s",
			paid, membership.Price, reservationID)
	}
	return remaining, nil
}

// applyState moves the reservation to paid exactly when the remainder
// hits zero, and back to installment for any positive remainder.
func (s *Service) applyState(ctx context.Context, tx *gorm.DB, reservationID snowflake.ID, remaining money.Amount, at time.Time) error {
	state := reservationdomain.StateInstallment
	if remaining.IsZero() {
		state = reservationdomain.StatePaid
	}
	return s.reservationRepo.UpdateState(ctx, tx, reservationID, state, at)
}
