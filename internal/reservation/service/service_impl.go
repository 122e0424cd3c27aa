package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/clock"
	"github.com/openconreg/conreg/internal/config"
	membershipdomain "github.com/openconreg/conreg/internal/membership/domain"
	obsmetrics "github.com/openconreg/conreg/internal/observability/metrics"
	"github.com/openconreg/conreg/internal/reservation/domain"
	"github.com/openconreg/conreg/pkg/db"
	"github.com/openconreg/conreg/pkg/temporal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Repo          domain.Repository
	MembershipSvc membershipdomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	floor         int64
	repo          domain.Repository
	membershipSvc membershipdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	floor := p.Cfg.MembershipNumberFloor
	if floor <= 0 {
		floor = domain.FirstMembershipNumber
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("reservation.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		floor:         floor,
		repo:          p.Repo,
		membershipSvc: p.MembershipSvc,
		obsMetrics:    p.ObsMetrics,
	}
}

// Reserve creates the reservation, its order and its claim in one
// transaction, holding the allocator lock across the read-max /
// insert critical section so concurrent reservations can never collide
// on a membership number.
func (s *Service) Reserve(ctx context.Context, req domain.ReserveRequest) (domain.Reservation, error) {
	if req.CustomerID == 0 {
		return domain.Reservation{}, domain.ErrInvalidCustomer
	}
	if req.MembershipNumber != nil && *req.MembershipNumber <= 0 {
		return domain.Reservation{}, domain.ErrInvalidNumber
	}

	membership, err := s.membershipSvc.FindByID(ctx, req.MembershipID)
	if err != nil {
		return domain.Reservation{}, err
	}

	asAt := req.AsOf
	if asAt.IsZero() {
		asAt = s.clock.Now()
	}
	asAt = asAt.UTC()

	state := domain.StateInstallment
	if membership.Price.IsZero() {
		state = domain.StatePaid
	}

	var reservation domain.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockCounter(ctx, tx); err != nil {
			return err
		}

		number, err := s.nextMembershipNumber(ctx, tx, req.MembershipNumber)
		if err != nil {
			return err
		}

		reservation = domain.Reservation{
			ID:               s.genID.Generate(),
			MembershipNumber: number,
			State:            state,
			CreatedAt:        asAt,
			UpdatedAt:        asAt,
		}
		if err := s.repo.Insert(ctx, tx, &reservation); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrNumberTaken
			}
			return err
		}

		order := domain.Order{
			ID:            s.genID.Generate(),
			ReservationID: reservation.ID,
			MembershipID:  membership.ID,
			Window:        temporal.Open(asAt),
			CreatedAt:     asAt,
			UpdatedAt:     asAt,
		}
		if err := s.repo.InsertOrder(ctx, tx, &order); err != nil {
			return err
		}

		claim := domain.Claim{
			ID:            s.genID.Generate(),
			ReservationID: reservation.ID,
			UserID:        req.CustomerID,
			Window:        temporal.Open(asAt),
			CreatedAt:     asAt,
			UpdatedAt:     asAt,
		}
		return s.repo.InsertClaim(ctx, tx, &claim)
	})
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			return domain.Reservation{}, domain.ErrLockTimeout
		}
		return domain.Reservation{}, err
	}

	s.log.Info("membership reserved",
		zap.Int64("membership_number", reservation.MembershipNumber),
		zap.String("membership", membership.Name),
		zap.String("state", string(reservation.State)),
	)
	s.obsMetrics.RecordReservation(ctx, membership.Name)

	return reservation, nil
}

// nextMembershipNumber must run under the counter lock. An explicit
// number (historical import) is taken as-is; the sequence derives from
// the stored maximum, so it can never move backward past it.
func (s *Service) nextMembershipNumber(ctx context.Context, tx *gorm.DB, explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}

	highest, err := s.repo.MaxMembershipNumber(ctx, tx)
	if err != nil {
		return 0, err
	}
	if highest < s.floor {
		return s.floor, nil
	}
	return highest + 1, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (domain.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if reservation == nil {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return *reservation, nil
}

func (s *Service) FindByMembershipNumber(ctx context.Context, number int64) (domain.Reservation, error) {
	reservation, err := s.repo.FindByMembershipNumber(ctx, s.db, number)
	if err != nil {
		return domain.Reservation{}, err
	}
	if reservation == nil {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return *reservation, nil
}

func (s *Service) ActiveClaim(ctx context.Context, reservationID snowflake.ID, at time.Time) (*domain.Claim, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	return s.repo.ActiveClaim(ctx, s.db, reservationID, at.UTC())
}

func (s *Service) ActiveOrder(ctx context.Context, reservationID snowflake.ID, at time.Time) (*domain.Order, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	return s.repo.ActiveOrder(ctx, s.db, reservationID, at.UTC())
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) error {
	return s.setState(ctx, id, domain.StatePaid)
}

func (s *Service) Disable(ctx context.Context, id snowflake.ID) error {
	return s.setState(ctx, id, domain.StateDisabled)
}

func (s *Service) setState(ctx context.Context, id snowflake.ID, state domain.State) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservation, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if reservation == nil {
			return domain.ErrNotFound
		}
		return s.repo.UpdateState(ctx, tx, id, state, s.clock.Now())
	})
}
