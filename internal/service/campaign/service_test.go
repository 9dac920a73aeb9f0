package campaign

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type memStore struct {
	rows []*domain.Campaign
}

func (m *memStore) CreateCampaign(_ context.Context, c *domain.Campaign) error {
	m.rows = append(m.rows, c)
	return nil
}

func (m *memStore) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	for _, c := range m.rows {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListCampaigns(_ context.Context) ([]*domain.Campaign, error) {
	return m.rows, nil
}

func intPtr(v int) *int { return &v }

func TestCreate(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()

	blank := "   "
	c, err := svc.Create(ctx, CreateInput{
		Name:           "  Spring Glow ",
		Notes:          &blank,
		TargetKeywords: []string{" Beauty", "beauty", "", "Makeup"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Spring Glow", c.Name)
	assert.Nil(t, c.Notes)
	assert.Equal(t, 50, c.StrictnessDefault)
	assert.Equal(t, []string{"beauty", "makeup"}, c.TargetKeywords)
	assert.Empty(t, c.AvoidKeywords)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Same(t, c, got)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(&memStore{}, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{Name: " "})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Create(context.Background(), CreateInput{Name: "x", StrictnessDefault: intPtr(101)})
	assert.True(t, errors.IsValidation(err))

	c, err := svc.Create(context.Background(), CreateInput{Name: "x", StrictnessDefault: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, c.StrictnessDefault)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}
