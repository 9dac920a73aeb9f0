package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
)

const campaignColumns = `id, name, notes, strictness_default, target_keywords, avoid_keywords, created_at`

type CampaignRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCampaignRepository(postgres *database.PostgresService, logger *zap.Logger) *CampaignRepository {
	return &CampaignRepository{
		db:     postgres.GetDB(),
		logger: logger,
	}
}

func (r *CampaignRepository) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, notes, strictness_default, target_keywords, avoid_keywords, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.Name, c.Notes, c.StrictnessDefault,
		pq.Array(nonNil(c.TargetKeywords)), pq.Array(nonNil(c.AvoidKeywords)),
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	return nil
}

// GetCampaign returns nil when the campaign does not exist.
func (r *CampaignRepository) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	c, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := make([]*domain.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c      domain.Campaign
		notes  sql.NullString
		target pq.StringArray
		avoid  pq.StringArray
	)

	if err := row.Scan(&c.ID, &c.Name, &notes, &c.StrictnessDefault, &target, &avoid, &c.CreatedAt); err != nil {
		return nil, err
	}

	c.Notes = nullStringPtr(notes)
	c.TargetKeywords = nonNil(target)
	c.AvoidKeywords = nonNil(avoid)
	return &c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
