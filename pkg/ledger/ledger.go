// Package ledger records one document per pipeline run.
package ledger

import (
	"context"
	"slices"
	"sync"

	"github.com/BartekS5/ticketflow/pkg/models"
)

// Ledger persists run reports. Recording is best effort: callers log a
// failure and carry on.
type Ledger interface {
	Record(ctx context.Context, report *models.RunReport) error
	// Recent returns up to limit reports, newest first.
	Recent(ctx context.Context, limit int) ([]models.RunReport, error)
}

// Nop discards every report.
type Nop struct{}

func (Nop) Record(context.Context, *models.RunReport) error { return nil }

func (Nop) Recent(context.Context, int) ([]models.RunReport, error) { return nil, nil }

// Memory keeps reports in process.
type Memory struct {
	mu      sync.Mutex
	reports []models.RunReport
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, report *models.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reports {
		if m.reports[i].RunID == report.RunID {
			m.reports[i] = *report
			return nil
		}
	}
	m.reports = append(m.reports, *report)
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]models.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.reports)
	slices.SortStableFunc(out, func(a, b models.RunReport) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
