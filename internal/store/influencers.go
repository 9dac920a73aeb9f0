package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
	"github.com/kapu/outreach-pipeline-go/internal/service/scrape"
)

const influencerColumns = `id, username, profile_url, avatar_url, bio, followers,
	email, phone, bio_link_url, social_links, import_id, source_filename,
	created_at, updated_at`

const videoColumns = `id, influencer_id, username, title, views, bookmarks, uploaded_at, thumbnail_url`

type InfluencerRepository struct {
	postgres *database.PostgresService
	db       *sql.DB
	logger   *zap.Logger
}

func NewInfluencerRepository(postgres *database.PostgresService, logger *zap.Logger) *InfluencerRepository {
	return &InfluencerRepository{
		postgres: postgres,
		db:       postgres.GetDB(),
		logger:   logger,
	}
}

// SaveScraped upserts the influencer by username and applies the video mode.
// The upsert holds the row lock until commit, so concurrent saves of the same
// username are serialized and never observe each other's partial video set.
func (r *InfluencerRepository) SaveScraped(ctx context.Context, inf *domain.Influencer, mode scrape.VideoMode, videoLimit int) error {
	if inf.ID == "" {
		inf.ID = uuid.NewString()
	}

	return r.postgres.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO influencers (id, username, profile_url, avatar_url, bio, followers,
			                         email, phone, bio_link_url, social_links, import_id,
			                         source_filename, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
			ON CONFLICT (username) DO UPDATE SET
				profile_url     = COALESCE(EXCLUDED.profile_url, influencers.profile_url),
				avatar_url      = COALESCE(EXCLUDED.avatar_url, influencers.avatar_url),
				bio             = COALESCE(EXCLUDED.bio, influencers.bio),
				followers       = COALESCE(EXCLUDED.followers, influencers.followers),
				email           = COALESCE(EXCLUDED.email, influencers.email),
				phone           = COALESCE(EXCLUDED.phone, influencers.phone),
				bio_link_url    = COALESCE(EXCLUDED.bio_link_url, influencers.bio_link_url),
				social_links    = CASE WHEN jsonb_array_length(EXCLUDED.social_links) > 0
				                       THEN EXCLUDED.social_links ELSE influencers.social_links END,
				import_id       = EXCLUDED.import_id,
				source_filename = EXCLUDED.source_filename,
				updated_at      = NOW()
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRowContext(ctx, query,
			inf.ID, inf.Username, inf.ProfileURL, inf.AvatarURL, inf.Bio, inf.Followers,
			inf.Email, inf.Phone, inf.BioLinkURL, encodeLinks(inf.SocialLinks), inf.ImportID,
			inf.SourceFilename,
		).Scan(&inf.ID, &inf.CreatedAt, &inf.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert influencer %s: %w", inf.Username, err)
		}

		for _, v := range inf.Videos {
			v.InfluencerID = inf.ID
			v.Username = inf.Username
		}

		switch mode {
		case scrape.VideoModeReplace:
			if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE influencer_id = $1`, inf.ID); err != nil {
				return fmt.Errorf("failed to clear videos: %w", err)
			}
			return insertVideos(ctx, tx, scrape.CapVideos(inf.Videos, videoLimit))
		default:
			existing, err := loadVideos(ctx, tx, []string{inf.ID}, 0)
			if err != nil {
				return err
			}
			merge := scrape.MergeVideos(existing[inf.ID], inf.Videos, videoLimit)
			for _, t := range merge.Thumbnails {
				if _, err := tx.ExecContext(ctx,
					`UPDATE videos SET thumbnail_url = $2 WHERE id = $1`,
					t.VideoID, t.ThumbnailURL); err != nil {
					return fmt.Errorf("failed to refresh thumbnail: %w", err)
				}
			}
			return insertVideos(ctx, tx, merge.Insert)
		}
	})
}

// PurgeUsernames deletes the influencers with their videos and evaluations.
func (r *InfluencerRepository) PurgeUsernames(ctx context.Context, usernames []string) (int, error) {
	if len(usernames) == 0 {
		return 0, nil
	}

	var deleted int
	err := r.postgres.WithTx(ctx, func(tx *sql.Tx) error {
		ids := `SELECT id FROM influencers WHERE username = ANY($1)`

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM influencer_ai_evaluations WHERE influencer_id IN (`+ids+`)`,
			pq.Array(usernames)); err != nil {
			return fmt.Errorf("failed to purge evaluations: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM videos WHERE influencer_id IN (`+ids+`)`,
			pq.Array(usernames)); err != nil {
			return fmt.Errorf("failed to purge videos: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM influencers WHERE username = ANY($1)`, pq.Array(usernames))
		if err != nil {
			return fmt.Errorf("failed to purge influencers: %w", err)
		}
		deleted = rowsAffected(res)
		return nil
	})
	return deleted, err
}

// LinkUsernames moves existing influencers to the import without touching their data.
func (r *InfluencerRepository) LinkUsernames(ctx context.Context, importID, sourceFilename string, usernames []string) (int, error) {
	if len(usernames) == 0 {
		return 0, nil
	}

	query := `
		UPDATE influencers
		SET import_id = $1, source_filename = $2, updated_at = NOW()
		WHERE username = ANY($3)
	`

	res, err := r.db.ExecContext(ctx, query, importID, sourceFilename, pq.Array(usernames))
	if err != nil {
		return 0, fmt.Errorf("failed to link influencers: %w", err)
	}
	return rowsAffected(res), nil
}

// VideoCounts returns the stored video count per known username.
func (r *InfluencerRepository) VideoCounts(ctx context.Context, usernames []string) (map[string]int, error) {
	counts := make(map[string]int, len(usernames))
	if len(usernames) == 0 {
		return counts, nil
	}

	query := `
		SELECT i.username, COUNT(v.id)
		FROM influencers i
		LEFT JOIN videos v ON v.influencer_id = i.id
		WHERE i.username = ANY($1)
		GROUP BY i.username
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(usernames))
	if err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			username string
			count    int
		)
		if err := rows.Scan(&username, &count); err != nil {
			return nil, fmt.Errorf("failed to scan video count: %w", err)
		}
		counts[username] = count
	}
	return counts, rows.Err()
}

// ListByImport returns the import's influencers with all of their videos.
func (r *InfluencerRepository) ListByImport(ctx context.Context, importID string) ([]*domain.Influencer, error) {
	query := `SELECT ` + influencerColumns + ` FROM influencers WHERE import_id = $1 ORDER BY username`

	rows, err := r.db.QueryContext(ctx, query, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to query influencers: %w", err)
	}
	defer rows.Close()

	influencers := make([]*domain.Influencer, 0)
	ids := make([]string, 0)
	for rows.Next() {
		inf, err := scanInfluencer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan influencer: %w", err)
		}
		influencers = append(influencers, inf)
		ids = append(ids, inf.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	videos, err := loadVideos(ctx, r.db, ids, 0)
	if err != nil {
		return nil, err
	}
	for _, inf := range influencers {
		inf.Videos = videos[inf.ID]
	}
	return influencers, nil
}

func (r *InfluencerRepository) UpdateAvatarURL(ctx context.Context, influencerID, url string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE influencers SET avatar_url = $2, updated_at = NOW() WHERE id = $1`,
		influencerID, url); err != nil {
		return fmt.Errorf("failed to update avatar url: %w", err)
	}
	return nil
}

func (r *InfluencerRepository) UpdateThumbnailURL(ctx context.Context, videoID, url string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE videos SET thumbnail_url = $2 WHERE id = $1`,
		videoID, url); err != nil {
		return fmt.Errorf("failed to update thumbnail url: %w", err)
	}
	return nil
}

// ListContextsByImport builds the scoring read model for every influencer of the import.
func (r *InfluencerRepository) ListContextsByImport(ctx context.Context, importID string, videoLimit int) ([]*domain.InfluencerContext, error) {
	query := `
		SELECT id, username, bio, followers, email, phone, social_links
		FROM influencers
		WHERE import_id = $1
		ORDER BY username
	`

	rows, err := r.db.QueryContext(ctx, query, importID)
	if err != nil {
		return nil, fmt.Errorf("failed to query influencer contexts: %w", err)
	}
	defer rows.Close()

	contexts := make([]*domain.InfluencerContext, 0)
	ids := make([]string, 0)
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan influencer context: %w", err)
		}
		contexts = append(contexts, c)
		ids = append(ids, c.InfluencerID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachSummaries(ctx, contexts, ids, videoLimit); err != nil {
		return nil, err
	}
	return contexts, nil
}

// GetContext returns nil when the influencer does not exist.
func (r *InfluencerRepository) GetContext(ctx context.Context, influencerID string, videoLimit int) (*domain.InfluencerContext, error) {
	query := `
		SELECT id, username, bio, followers, email, phone, social_links
		FROM influencers
		WHERE id = $1
	`

	c, err := scanContext(r.db.QueryRowContext(ctx, query, influencerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query influencer context: %w", err)
	}

	if err := r.attachSummaries(ctx, []*domain.InfluencerContext{c}, []string{c.InfluencerID}, videoLimit); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *InfluencerRepository) attachSummaries(ctx context.Context, contexts []*domain.InfluencerContext, ids []string, videoLimit int) error {
	videos, err := loadVideos(ctx, r.db, ids, videoLimit)
	if err != nil {
		return err
	}
	for _, c := range contexts {
		c.Videos = make([]domain.VideoSummary, 0, len(videos[c.InfluencerID]))
		for _, v := range videos[c.InfluencerID] {
			c.Videos = append(c.Videos, domain.VideoSummary{Title: v.Title, Views: v.Views})
		}
	}
	return nil
}

// loadVideos groups videos by influencer, newest first. limit <= 0 loads all.
func loadVideos(ctx context.Context, q queryer, influencerIDs []string, limit int) (map[string][]*domain.Video, error) {
	out := make(map[string][]*domain.Video, len(influencerIDs))
	if len(influencerIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT ` + videoColumns + `
		FROM (
			SELECT ` + videoColumns + `,
			       ROW_NUMBER() OVER (
			           PARTITION BY influencer_id
			           ORDER BY uploaded_at DESC NULLS LAST, created_at DESC
			       ) AS rn
			FROM videos
			WHERE influencer_id = ANY($1)
		) ranked
		WHERE $2::int <= 0 OR rn <= $2::int
		ORDER BY influencer_id, rn
	`

	rows, err := q.QueryContext(ctx, query, pq.Array(influencerIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v            domain.Video
			title        sql.NullString
			views        sql.NullInt64
			bookmarks    sql.NullInt64
			uploadedAt   sql.NullTime
			thumbnailURL sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.InfluencerID, &v.Username, &title, &views,
			&bookmarks, &uploadedAt, &thumbnailURL); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		v.Title = nullStringPtr(title)
		v.Views = nullInt64Ptr(views)
		v.Bookmarks = nullInt64Ptr(bookmarks)
		v.UploadedAt = nullTimePtr(uploadedAt)
		v.ThumbnailURL = nullStringPtr(thumbnailURL)
		out[v.InfluencerID] = append(out[v.InfluencerID], &v)
	}
	return out, rows.Err()
}

func insertVideos(ctx context.Context, tx *sql.Tx, videos []*domain.Video) error {
	if len(videos) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("videos",
		"id", "influencer_id", "username", "title", "views", "bookmarks", "uploaded_at", "thumbnail_url"))
	if err != nil {
		return fmt.Errorf("failed to prepare video copy: %w", err)
	}

	for _, v := range videos {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, v.ID, v.InfluencerID, v.Username, v.Title, v.Views,
			v.Bookmarks, v.UploadedAt, v.ThumbnailURL); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy video: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush video copy: %w", err)
	}
	return stmt.Close()
}

func scanInfluencer(row rowScanner) (*domain.Influencer, error) {
	var (
		inf            domain.Influencer
		profileURL     sql.NullString
		avatarURL      sql.NullString
		bio            sql.NullString
		followers      sql.NullInt64
		email          sql.NullString
		phone          sql.NullString
		bioLinkURL     sql.NullString
		socialLinks    []byte
		importID       sql.NullString
		sourceFilename sql.NullString
	)

	err := row.Scan(
		&inf.ID, &inf.Username, &profileURL, &avatarURL, &bio, &followers,
		&email, &phone, &bioLinkURL, &socialLinks, &importID, &sourceFilename,
		&inf.CreatedAt, &inf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inf.ProfileURL = nullStringPtr(profileURL)
	inf.AvatarURL = nullStringPtr(avatarURL)
	inf.Bio = nullStringPtr(bio)
	inf.Followers = nullInt64Ptr(followers)
	inf.Email = nullStringPtr(email)
	inf.Phone = nullStringPtr(phone)
	inf.BioLinkURL = nullStringPtr(bioLinkURL)
	inf.SocialLinks = decodeLinks(socialLinks)
	inf.ImportID = nullStringPtr(importID)
	inf.SourceFilename = nullStringPtr(sourceFilename)
	return &inf, nil
}

func scanContext(row rowScanner) (*domain.InfluencerContext, error) {
	var (
		c           domain.InfluencerContext
		bio         sql.NullString
		followers   sql.NullInt64
		email       sql.NullString
		phone       sql.NullString
		socialLinks []byte
	)

	if err := row.Scan(&c.InfluencerID, &c.Username, &bio, &followers, &email, &phone, &socialLinks); err != nil {
		return nil, err
	}

	c.Bio = nullStringPtr(bio)
	c.Followers = nullInt64Ptr(followers)
	c.Email = nullStringPtr(email)
	c.Phone = nullStringPtr(phone)
	c.SocialLinks = decodeLinks(socialLinks)
	return &c, nil
}
