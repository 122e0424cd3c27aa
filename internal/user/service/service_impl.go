package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/openconreg/conreg/internal/clock"
	"github.com/openconreg/conreg/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// NormalizeEmail lower-cases and trims an address; lookup and storage
// always go through this.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", domain.ErrInvalidEmail
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", domain.ErrInvalidEmail
	}
	if strings.ContainsAny(email, " \t") {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) FindOrCreate(ctx context.Context, email string) (domain.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return domain.User{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	now := s.clock.Now().UTC()
	user := domain.User{
		ID:        s.genID.Generate(),
		Email:     normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, &user)
	if err != nil {
		return domain.User{}, err
	}
	if inserted {
		return user, nil
	}

	// Lost the race to a concurrent create; the winner's row is
	// authoritative.
	existing, err = s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return domain.User{}, err
	}
	if existing == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *existing, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByEmail(ctx, s.db, normalized)
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) AddNote(ctx context.Context, userID snowflake.ID, content string, metadata map[string]any) (domain.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Note{}, domain.ErrInvalidNote
	}
	if userID == 0 {
		return domain.Note{}, domain.ErrNotFound
	}

	note := domain.Note{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Content:   content,
		Metadata:  datatypes.JSONMap(metadata),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.InsertNote(ctx, s.db, &note); err != nil {
		return domain.Note{}, err
	}
	return note, nil
}

func (s *Service) Notes(ctx context.Context, userID snowflake.ID) ([]*domain.Note, error) {
	return s.repo.ListNotes(ctx, s.db, userID)
}
