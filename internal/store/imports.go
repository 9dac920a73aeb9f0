package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
)

const importColumns = `id, source_filename, row_count, processed_count, status,
	username_limit, video_count, save_progress, save_total, error_message,
	created_at, updated_at`

type ImportRepository struct {
	postgres *database.PostgresService
	db       *sql.DB
	logger   *zap.Logger
}

func NewImportRepository(postgres *database.PostgresService, logger *zap.Logger) *ImportRepository {
	return &ImportRepository{
		postgres: postgres,
		db:       postgres.GetDB(),
		logger:   logger,
	}
}

func (r *ImportRepository) CreateImport(ctx context.Context, imp *domain.Import) error {
	query := `
		INSERT INTO imports (id, source_filename, row_count, processed_count, status,
		                     username_limit, video_count, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		imp.ID, imp.SourceFilename, imp.RowCount, string(imp.Status),
		imp.UsernameLimit, imp.VideoCount,
	).Scan(&imp.CreatedAt, &imp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert import: %w", err)
	}
	return nil
}

// GetImport returns nil when the import does not exist.
func (r *ImportRepository) GetImport(ctx context.Context, id string) (*domain.Import, error) {
	query := `SELECT ` + importColumns + ` FROM imports WHERE id = $1`

	imp, err := scanImport(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query import: %w", err)
	}
	return imp, nil
}

func (r *ImportRepository) ListImports(ctx context.Context, limit int) ([]*domain.Import, error) {
	query := `SELECT ` + importColumns + ` FROM imports ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	imports := make([]*domain.Import, 0)
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

func (r *ImportRepository) UpdateImportStatus(ctx context.Context, id string, status domain.ImportStatus, errorMessage *string) error {
	query := `UPDATE imports SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, string(status), errorMessage); err != nil {
		return fmt.Errorf("failed to update import status: %w", err)
	}
	return nil
}

// TransitionImportStatus moves an import from one status to another and
// clears its error message. It reports false when the import was not in from.
func (r *ImportRepository) TransitionImportStatus(ctx context.Context, id string, from, to domain.ImportStatus) (bool, error) {
	query := `UPDATE imports SET status = $3, error_message = NULL, updated_at = NOW() WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("failed to transition import status: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

func (r *ImportRepository) SetProcessedCount(ctx context.Context, id string, processed int) error {
	query := `UPDATE imports SET processed_count = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, processed); err != nil {
		return fmt.Errorf("failed to update processed count: %w", err)
	}
	return nil
}

func (r *ImportRepository) UpdateSaveProgress(ctx context.Context, id string, done, total int) error {
	query := `UPDATE imports SET save_progress = $2, save_total = $3, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, done, total); err != nil {
		return fmt.Errorf("failed to update save progress: %w", err)
	}
	return nil
}

// ListDraftIDsBefore returns DRAFT imports last touched before cutoff.
func (r *ImportRepository) ListDraftIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `SELECT id FROM imports WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`

	rows, err := r.db.QueryContext(ctx, query, string(domain.ImportStatusDraft), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale drafts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan draft id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteWithData removes the imports together with their influencers,
// videos and evaluation rows. Returns the number of influencers removed.
func (r *ImportRepository) DeleteWithData(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int
	err := r.postgres.WithTx(ctx, func(tx *sql.Tx) error {
		influencerIDs := `SELECT id FROM influencers WHERE import_id = ANY($1)`

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM influencer_ai_evaluations WHERE influencer_id IN (`+influencerIDs+`)`,
			pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to delete evaluations: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM videos WHERE influencer_id IN (`+influencerIDs+`)`,
			pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to delete videos: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM influencers WHERE import_id = ANY($1)`, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("failed to delete influencers: %w", err)
		}
		deleted = rowsAffected(res)

		if _, err := tx.ExecContext(ctx, `DELETE FROM imports WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
			return fmt.Errorf("failed to delete imports: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("Imports deleted",
		zap.Strings("import_ids", ids),
		zap.Int("influencers", deleted),
	)
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImport(row rowScanner) (*domain.Import, error) {
	var (
		imp          domain.Import
		status       string
		errorMessage sql.NullString
	)

	err := row.Scan(
		&imp.ID, &imp.SourceFilename, &imp.RowCount, &imp.ProcessedCount, &status,
		&imp.UsernameLimit, &imp.VideoCount, &imp.SaveProgress, &imp.SaveTotal, &errorMessage,
		&imp.CreatedAt, &imp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	imp.Status = domain.ImportStatus(status)
	imp.ErrorMessage = nullStringPtr(errorMessage)
	return &imp, nil
}
