// Package warehouse is the SQL-engine boundary: staged-file bulk loads,
// historical table provisioning and the SCD2 merge.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/BartekS5/ticketflow/pkg/models"
)

// WriteMode controls what a stage load does with existing rows.
type WriteMode string

const (
	WriteAppend   WriteMode = "append"
	WriteTruncate WriteMode = "truncate"
	// WriteEmpty fails the load when the table already holds rows.
	WriteEmpty WriteMode = "empty"
)

// ParseWriteMode accepts the config spelling of a write mode.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case WriteAppend, WriteTruncate, WriteEmpty:
		return m, nil
	default:
		return "", fmt.Errorf("unknown write mode %q", s)
	}
}

// MergeResult reports the rows a merge touched. Closed and Inserted are
// only filled by engines that expose the split; Affected is always set.
type MergeResult struct {
	Affected int64
	Closed   int64
	Inserted int64
}

// Warehouse is implemented by every backend. Errors carry an etlerr kind
// and are never retried internally.
type Warehouse interface {
	// LoadStage bulk-loads the delimited file at sourceURI into table,
	// skipping the header row, and returns the number of rows loaded.
	LoadStage(ctx context.Context, sourceURI, table string, schema models.Schema, mode WriteMode) (int64, error)
	// EnsureHistoricalTable creates table with schema plus the SCD2
	// columns when it does not exist.
	EnsureHistoricalTable(ctx context.Context, table string, schema models.Schema) error
	// MergeSCD2 reconciles stage into historical as one set-oriented
	// statement. Callers serialize merges per historical table.
	MergeSCD2(ctx context.Context, stage, historical string, schema models.Schema) (MergeResult, error)
	// DropTable removes a table; a missing table is not an error.
	DropTable(ctx context.Context, table string) error
}
