package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/config"
)

type PostgresService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresService(cfg config.PostgresConfig, logger *zap.Logger) (*PostgresService, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("PostgreSQL connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	return NewPostgresServiceFromDB(db, logger), nil
}

// NewPostgresServiceFromDB wraps an already opened pool.
func NewPostgresServiceFromDB(db *sql.DB, logger *zap.Logger) *PostgresService {
	return &PostgresService{db: db, logger: logger}
}

func (ps *PostgresService) GetDB() *sql.DB {
	return ps.db
}

// WithTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (ps *PostgresService) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			ps.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (ps *PostgresService) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

func (ps *PostgresService) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}
