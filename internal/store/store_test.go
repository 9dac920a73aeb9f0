package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
	"github.com/kapu/outreach-pipeline-go/internal/service/scrape"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestLinksCodec(t *testing.T) {
	assert.JSONEq(t, `[]`, string(encodeLinks(nil)))
	assert.JSONEq(t, `["https://instagram.com/a"]`, string(encodeLinks([]string{"https://instagram.com/a"})))

	assert.Equal(t, []string{}, decodeLinks(nil))
	assert.Equal(t, []string{}, decodeLinks([]byte(`null`)))
	assert.Equal(t, []string{}, decodeLinks([]byte(`{broken`)))
	assert.Equal(t, []string{"a", "b"}, decodeLinks([]byte(`["a","b"]`)))
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullStringPtr(sql.NullString{}))
	assert.Equal(t, "x", *nullStringPtr(sql.NullString{String: "x", Valid: true}))
	assert.Nil(t, nullInt64Ptr(sql.NullInt64{}))
	assert.Equal(t, int64(7), *nullInt64Ptr(sql.NullInt64{Int64: 7, Valid: true}))
	assert.Equal(t, 7, *nullIntPtr(sql.NullInt64{Int64: 7, Valid: true}))

	local := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))
	got := nullTimePtr(sql.NullTime{Time: local, Valid: true})
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(local))
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"imports", "influencers", "videos", "campaigns",
		"ai_filter_runs", "influencer_ai_evaluations", "notifications"} {
		assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, Schema, "UNIQUE (run_id, influencer_id)")
}

// openTestDB connects to OUTREACH_TEST_DSN and recreates the schema.
func openTestDB(t *testing.T) *database.PostgresService {
	t.Helper()

	dsn := os.Getenv("OUTREACH_TEST_DSN")
	if dsn == "" {
		t.Skip("OUTREACH_TEST_DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`DROP TABLE IF EXISTS notifications, influencer_ai_evaluations,
		ai_filter_runs, campaigns, videos, influencers, imports CASCADE`)
	require.NoError(t, err)
	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return database.NewPostgresServiceFromDB(db, zap.NewNop())
}

func video(title string, day int, thumb string) *domain.Video {
	at := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
	return &domain.Video{Title: strPtr(title), UploadedAt: &at, ThumbnailURL: strPtr(thumb)}
}

func TestInfluencerRepository_Integration(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	logger := zap.NewNop()

	imports := NewImportRepository(pg, logger)
	influencers := NewInfluencerRepository(pg, logger)

	imp := &domain.Import{ID: uuid.NewString(), SourceFilename: "a.csv", RowCount: 2,
		Status: domain.ImportStatusPending, UsernameLimit: -1, VideoCount: 3}
	require.NoError(t, imports.CreateImport(ctx, imp))

	inf := &domain.Influencer{
		Username:       "anna",
		Bio:            strPtr("makeup daily"),
		SocialLinks:    []string{"https://instagram.com/anna"},
		ImportID:       &imp.ID,
		SourceFilename: strPtr("a.csv"),
		Videos:         []*domain.Video{video("v1", 1, "t1"), video("v2", 2, "t2")},
	}
	require.NoError(t, influencers.SaveScraped(ctx, inf, scrape.VideoModeReplace, 3))

	t.Run("append never deletes and refreshes thumbnails", func(t *testing.T) {
		again := &domain.Influencer{
			Username: "anna",
			ImportID: &imp.ID,
			Videos:   []*domain.Video{video("v2", 2, "t2-new"), video("v3", 3, "t3"), video("v4", 4, "t4")},
		}
		require.NoError(t, influencers.SaveScraped(ctx, again, scrape.VideoModeAppend, 3))

		list, err := influencers.ListByImport(ctx, imp.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "makeup daily", *list[0].Bio)
		assert.Equal(t, []string{"https://instagram.com/anna"}, list[0].SocialLinks)
		require.Len(t, list[0].Videos, 3)
		assert.Equal(t, "v3", *list[0].Videos[0].Title)
		assert.Equal(t, "t2-new", *list[0].Videos[1].ThumbnailURL)
	})

	t.Run("contexts cap videos newest first", func(t *testing.T) {
		contexts, err := influencers.ListContextsByImport(ctx, imp.ID, 2)
		require.NoError(t, err)
		require.Len(t, contexts, 1)
		require.Len(t, contexts[0].Videos, 2)
		assert.Equal(t, "v3", *contexts[0].Videos[0].Title)

		missing, err := influencers.GetContext(ctx, "nope", 2)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("video counts and purge", func(t *testing.T) {
		counts, err := influencers.VideoCounts(ctx, []string{"anna", "ghost"})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"anna": 3}, counts)

		n, err := influencers.PurgeUsernames(ctx, []string{"anna"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		counts, err = influencers.VideoCounts(ctx, []string{"anna"})
		require.NoError(t, err)
		assert.Empty(t, counts)
	})
}

func TestImportRepository_TransitionIntegration(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	imports := NewImportRepository(pg, zap.NewNop())

	imp := &domain.Import{ID: uuid.NewString(), SourceFilename: "a.csv", RowCount: 1,
		Status: domain.ImportStatusDraft, UsernameLimit: -1, VideoCount: 3}
	require.NoError(t, imports.CreateImport(ctx, imp))

	ok, err := imports.TransitionImportStatus(ctx, imp.ID, domain.ImportStatusDraft, domain.ImportStatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = imports.TransitionImportStatus(ctx, imp.ID, domain.ImportStatusDraft, domain.ImportStatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := imports.GetImport(ctx, imp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusProcessing, got.Status)
}

func TestRunRepository_Integration(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	logger := zap.NewNop()

	imports := NewImportRepository(pg, logger)
	influencers := NewInfluencerRepository(pg, logger)
	campaigns := NewCampaignRepository(pg, logger)
	runs := NewRunRepository(pg, logger)

	imp := &domain.Import{ID: uuid.NewString(), SourceFilename: "b.csv", Status: domain.ImportStatusDraft, VideoCount: 20}
	require.NoError(t, imports.CreateImport(ctx, imp))

	inf := &domain.Influencer{Username: "bob", ImportID: &imp.ID}
	require.NoError(t, influencers.SaveScraped(ctx, inf, scrape.VideoModeReplace, 20))

	camp := &domain.Campaign{ID: uuid.NewString(), Name: "Glow", StrictnessDefault: 60,
		TargetKeywords: []string{"beauty"}}
	require.NoError(t, campaigns.CreateCampaign(ctx, camp))

	got, err := campaigns.GetCampaign(ctx, camp.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"beauty"}, got.TargetKeywords)
	assert.Equal(t, []string{}, got.AvoidKeywords)

	run := &domain.AiFilterRun{ID: uuid.NewString(), CampaignID: camp.ID, ImportID: imp.ID,
		Strictness: 60, Status: domain.RunStatusProcessing}
	require.NoError(t, runs.CreateRun(ctx, run))

	score := 80
	eval := &domain.Evaluation{RunID: run.ID, InfluencerID: inf.ID, PrefilterLabel: domain.PrefilterNone,
		Score: &score, Bucket: domain.BucketApproved, ReviewStatus: domain.ReviewNotReviewed}
	require.NoError(t, runs.UpsertEvaluation(ctx, eval))

	second := &domain.Evaluation{RunID: run.ID, InfluencerID: inf.ID, PrefilterLabel: domain.PrefilterNone,
		Score: &score, Bucket: domain.BucketOkish, ReviewStatus: domain.ReviewNotReviewed}
	require.NoError(t, runs.UpsertEvaluation(ctx, second))
	assert.Equal(t, eval.ID, second.ID)

	evals, err := runs.ListEvaluations(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, "bob", evals[0].Username)
	assert.Equal(t, domain.BucketOkish, evals[0].Bucket)

	n, err := runs.MarkBucketSaved(ctx, run.ID, domain.BucketOkish)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	saved, err := runs.ListSaved(ctx)
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	n, err = runs.DiscardEvaluations(ctx, run.ID, []string{eval.ID}, "Manually discarded")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	evals, err = runs.GetEvaluations(ctx, run.ID, []string{eval.ID})
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Nil(t, evals[0].Score)
	assert.Equal(t, domain.ReviewDiscarded, evals[0].ReviewStatus)

	require.NoError(t, runs.UpdateRunCounters(ctx, run.ID, domain.CountEvaluations(evals)))
	require.NoError(t, runs.FinishRun(ctx, run.ID, domain.RunStatusCompleted, nil))

	loaded, err := runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, loaded.Status)
	assert.Equal(t, "Glow", loaded.CampaignName)
	assert.Equal(t, 1, loaded.RejectedCount)

	err = runs.SetReviewStatus(ctx, "missing", domain.ReviewDiscarded)
	assert.True(t, errors.IsNotFound(err))

	deleted, err := imports.DeleteWithData(ctx, []string{imp.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	gone, err := imports.GetImport(ctx, imp.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestNotificationRepository_Integration(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(pg, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertNotification(ctx, &domain.Notification{
			ID: uuid.NewString(), Type: domain.NotificationScrape, Status: domain.NotificationSuccess,
			Title: "Scrape complete", Message: "done",
		}))
	}

	list, unread, err := repo.ListNotifications(ctx, 2, false)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 3, unread)

	require.NoError(t, repo.SetRead(ctx, list[0].ID, true))
	list, unread, err = repo.ListNotifications(ctx, 10, true)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, unread)

	assert.True(t, errors.IsNotFound(repo.SetRead(ctx, "missing", true)))

	n, err := repo.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
