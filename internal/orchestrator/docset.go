package orchestrator

import (
	"sync"

	"shop-analytics/internal/domain"
)

// docSet holds the stored documents of one stage, for use by the next.
type docSet struct {
	mu   sync.RWMutex
	docs map[string]*domain.MetricsDocument
}

func newDocSet() *docSet {
	return &docSet{docs: make(map[string]*domain.MetricsDocument)}
}

func docKey(scope domain.Scope, p domain.Period) string {
	return scope.Identity() + "|" + p.Key()
}

// add keeps the first document for a key unless replace is set.
func (s *docSet) add(doc *domain.MetricsDocument, replace bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey(doc.Scope, doc.Period)
	if _, ok := s.docs[key]; ok && !replace {
		return
	}
	s.docs[key] = doc
}

func (s *docSet) get(scope domain.Scope, p domain.Period) *domain.MetricsDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[docKey(scope, p)]
}

func (s *docSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
