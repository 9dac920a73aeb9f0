// Package store holds the Postgres repositories of the pipeline.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"
)

//go:embed schema.sql
var Schema string

// bucketOrder sorts evaluations APPROVED, OKISH, REVIEW_QUEUE, REJECTED.
const bucketOrder = `CASE e.bucket
	WHEN 'APPROVED' THEN 0
	WHEN 'OKISH' THEN 1
	WHEN 'REVIEW_QUEUE' THEN 2
	ELSE 3 END`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullIntPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func encodeLinks(links []string) []byte {
	if links == nil {
		links = []string{}
	}
	data, _ := json.Marshal(links)
	return data
}

func decodeLinks(raw []byte) []string {
	var links []string
	if len(raw) == 0 {
		return []string{}
	}
	if err := json.Unmarshal(raw, &links); err != nil || links == nil {
		return []string{}
	}
	return links
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
