// Package campaign manages the reusable filter configurations runs start from.
package campaign

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/util"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

const defaultStrictness = 50

type Store interface {
	CreateCampaign(ctx context.Context, c *domain.Campaign) error
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*domain.Campaign, error)
}

type CreateInput struct {
	Name              string
	Notes             *string
	StrictnessDefault *int
	TargetKeywords    []string
	AvoidKeywords     []string
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.NewValidationError("campaign name is required", "name", in.Name)
	}

	strictness := defaultStrictness
	if in.StrictnessDefault != nil {
		strictness = *in.StrictnessDefault
		if strictness < 0 || strictness > 100 {
			return nil, errors.NewValidationError("strictness must be between 0 and 100", "strictnessDefault", strictness)
		}
	}

	var notes *string
	if in.Notes != nil {
		if trimmed := strings.TrimSpace(*in.Notes); trimmed != "" {
			notes = &trimmed
		}
	}

	c := &domain.Campaign{
		ID:                uuid.NewString(),
		Name:              name,
		Notes:             notes,
		StrictnessDefault: strictness,
		TargetKeywords:    util.NormalizeKeywords(in.TargetKeywords),
		AvoidKeywords:     util.NormalizeKeywords(in.AvoidKeywords),
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("Campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("name", c.Name),
		zap.Int("target_keywords", len(c.TargetKeywords)),
		zap.Int("avoid_keywords", len(c.AvoidKeywords)),
	)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.NewNotFoundError("campaign", id)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.Campaign, error) {
	return s.store.ListCampaigns(ctx)
}
