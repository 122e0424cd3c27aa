package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/clock"
	"github.com/openconreg/conreg/internal/membership/domain"
	"github.com/openconreg/conreg/pkg/money"
	"github.com/openconreg/conreg/pkg/temporal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("membership.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateMembershipRequest) (domain.Membership, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Membership{}, domain.ErrInvalidName
	}
	if req.Price.IsNegative() {
		return domain.Membership{}, domain.ErrInvalidPrice
	}

	now := s.clock.Now()
	activeFrom := req.ActiveFrom
	if activeFrom.IsZero() {
		activeFrom = now
	}

	membership := domain.Membership{
		ID:        s.genID.Generate(),
		Name:      name,
		Price:     req.Price,
		Window:    temporal.Window{ActiveFrom: activeFrom.UTC(), ActiveTo: req.ActiveTo},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &membership); err != nil {
		return domain.Membership{}, err
	}
	return membership, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (domain.Membership, error) {
	membership, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Membership{}, err
	}
	if membership == nil {
		return domain.Membership{}, domain.ErrNotFound
	}
	return *membership, nil
}

func (s *Service) FindByName(ctx context.Context, name string, asOf time.Time) (domain.Membership, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Membership{}, domain.ErrInvalidName
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	membership, err := s.repo.FindByNameAt(ctx, s.db, name, asOf.UTC())
	if err != nil {
		return domain.Membership{}, err
	}
	if membership == nil {
		return domain.Membership{}, domain.ErrNotFound
	}
	return *membership, nil
}

func (s *Service) ChangePrice(ctx context.Context, id snowflake.ID, price money.Amount, at time.Time) (domain.Membership, error) {
	if price.IsNegative() {
		return domain.Membership{}, domain.ErrInvalidPrice
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	var replacement domain.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !current.ActiveAt(at) {
			return domain.ErrNotActive
		}

		if err := s.repo.CloseWindow(ctx, tx, current.ID, at); err != nil {
			return err
		}

		replacement = domain.Membership{
			ID:        s.genID.Generate(),
			Name:      current.Name,
			Price:     price,
			Window:    temporal.Open(at),
			CreatedAt: at,
			UpdatedAt: at,
		}
		return s.repo.Insert(ctx, tx, &replacement)
	})
	if err != nil {
		return domain.Membership{}, err
	}

	s.log.Info("membership price changed",
		zap.String("name", replacement.Name),
		zap.String("price", price.String()),
	)
	return replacement, nil
}

func (s *Service) Retire(ctx context.Context, id snowflake.ID, at time.Time) error {
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !current.ActiveAt(at) {
			return domain.ErrNotActive
		}
		if err := s.repo.CloseWindow(ctx, tx, current.ID, at); err != nil {
			return err
		}
		s.log.Info("membership retired", zap.String("name", current.Name))
		return nil
	})
}
