package imports

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/kapu/outreach-pipeline-go/internal/util"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// ParsedUsernames is the username column of an uploaded CSV.
type ParsedUsernames struct {
	// RowCount counts data rows with a non-empty username, duplicates included.
	RowCount  int
	Unique    []string
	Usernames []string
}

// ParseUsernames extracts the Username column, normalizing and deduplicating
// in order and keeping the first limit usernames when limit > 0.
func ParseUsernames(data []byte, limit int) (*ParsedUsernames, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		header []string
		rows   [][]string
	)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewValidationError("CSV could not be parsed", "file", err.Error())
		}
		if isBlankRecord(record) {
			continue
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}

	if header == nil || len(rows) == 0 {
		return nil, errors.NewValidationError("CSV must have a header row and at least one data row", "file", nil)
	}

	col := -1
	for i, h := range header {
		if strings.EqualFold(cleanCell(h), "username") {
			col = i
			break
		}
	}
	if col == -1 {
		return nil, errors.NewValidationError(`CSV must contain a "Username" column`, "file", nil)
	}

	out := &ParsedUsernames{}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		username := util.NormalizeUsername(row[col])
		if username == "" {
			continue
		}
		out.RowCount++
		if _, dup := seen[username]; dup {
			continue
		}
		seen[username] = struct{}{}
		out.Unique = append(out.Unique, username)
	}

	out.Usernames = out.Unique
	if limit > 0 && len(out.Usernames) > limit {
		out.Usernames = out.Unique[:limit]
	}
	return out, nil
}

func cleanCell(v string) string {
	return strings.Trim(strings.TrimSpace(v), `"`)
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
