package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// ReportStore is an in-memory implementation of storage.ReportStore.
type ReportStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Report // keyed by natural key
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		data: make(map[string]*domain.Report),
	}
}

// reportKey generates the natural key of a report.
func reportKey(scope domain.Scope, period domain.Period) string {
	return fmt.Sprintf("%s|%s|%s", scope.Kind, scope.Identity(), period.Key())
}

func validReport(r *domain.Report) bool {
	return r != nil && r.Document != nil && r.Scope.Validate() == nil && r.Period.Type.Valid()
}

// Upsert writes reports atomically, overwriting existing keys.
func (s *ReportStore) Upsert(_ context.Context, reports []*domain.Report) error {
	for _, r := range reports {
		if !validReport(r) {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range reports {
		s.data[reportKey(r.Scope, r.Period)] = copyReport(r)
	}
	return nil
}

// Get retrieves a report by natural key. Returns ErrNotFound if not exists.
func (s *ReportStore) Get(_ context.Context, scope domain.Scope, period domain.Period) (*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[reportKey(scope, period)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyReport(r), nil
}

// List returns every report of a kind ordered by identity, period type, start.
func (s *ReportStore) List(_ context.Context, kind domain.ScopeKind) ([]*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Report
	for _, r := range s.data {
		if r.Scope.Kind == kind {
			result = append(result, copyReport(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Scope.Identity() != b.Scope.Identity() {
			return a.Scope.Identity() < b.Scope.Identity()
		}
		if a.Period.Type != b.Period.Type {
			return a.Period.Type < b.Period.Type
		}
		return a.Period.Range.Start.Before(b.Period.Range.Start)
	})
	return result, nil
}

// DeleteAll removes every report.
func (s *ReportStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*domain.Report)
	return nil
}

// Len returns the number of stored reports.
func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// copyReport copies the report and its document. Samples are shared
// read-only; nothing in the engine mutates a stored document.
func copyReport(r *domain.Report) *domain.Report {
	docCopy := *r.Document
	out := *r
	out.Document = &docCopy
	return &out
}

var _ storage.ReportStore = (*ReportStore)(nil)
