// Package importlog keeps the history of bulk user imports so admins can
// review inserted, skipped and failed rows after the upload dialog closes.
package importlog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/pitabwire/marketdesk/model"
)

// Query selects one page of history. An empty SubjectID lists the imports
// of every admin.
type Query struct {
	SubjectID string
	Page      int
	PageSize  int
}

func (q Query) normalized() Query {
	q.Page = max(1, q.Page)
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	return q
}

// Store persists import reports.
type Store interface {
	// Append records a finished import. Reports are immutable once stored.
	Append(ctx context.Context, report model.ImportReport) error

	// List returns reports newest first.
	List(ctx context.Context, q Query) (model.ListResult[model.ImportReport], error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []model.ImportReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, report model.ImportReport) error {
	if report.ID == "" {
		return fmt.Errorf("importlog: report has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ID == report.ID {
			return model.NewConflictError(fmt.Sprintf("import report %q already recorded", report.ID))
		}
	}
	report.Errors = slices.Clone(report.Errors)
	s.reports = append(s.reports, report)
	return nil
}

func (s *MemoryStore) List(_ context.Context, q Query) (model.ListResult[model.ImportReport], error) {
	q = q.normalized()
	s.mu.RLock()
	var matched []model.ImportReport
	for _, r := range s.reports {
		if q.SubjectID == "" || r.SubjectID == q.SubjectID {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b model.ImportReport) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := min((q.Page-1)*q.PageSize, len(matched))
	end := min(start+q.PageSize, len(matched))
	items := make([]model.ImportReport, 0, end-start)
	items = append(items, matched[start:end]...)
	return model.ListResult[model.ImportReport]{
		Items:      items,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalItems: len(matched),
		TotalPages: model.TotalPagesFor(len(matched), q.PageSize),
	}, nil
}
