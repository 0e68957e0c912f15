package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// OrderSource is an in-memory implementation of storage.OrderSource.
type OrderSource struct {
	mu     sync.RWMutex
	orders []domain.Order

	// failure injection
	failNext int
	failErr  error
	fetches  int
}

// NewOrderSource creates a source holding orders.
func NewOrderSource(orders ...domain.Order) *OrderSource {
	s := &OrderSource{}
	s.Add(orders...)
	return s
}

// Add appends orders to the source.
func (s *OrderSource) Add(orders ...domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, orders...)
	sort.SliceStable(s.orders, func(i, j int) bool {
		if !s.orders[i].CreatedAt.Equal(s.orders[j].CreatedAt) {
			return s.orders[i].CreatedAt.Before(s.orders[j].CreatedAt)
		}
		return s.orders[i].OrderID < s.orders[j].OrderID
	})
}

// FailNext makes the next n fetches return err.
func (s *OrderSource) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext, s.failErr = n, err
}

// Fetches returns how many FetchOrders calls were made.
func (s *OrderSource) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}

// FetchOrders returns orders inside any of ranges, narrowed to the filter.
func (s *OrderSource) FetchOrders(_ context.Context, filter storage.OrderFilter, ranges []domain.DateRange) ([]domain.Order, error) {
	s.mu.Lock()
	s.fetches++
	if s.failNext > 0 {
		s.failNext--
		err := s.failErr
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Order
	for _, o := range s.orders {
		if !inAny(o, ranges) {
			continue
		}
		items := make([]domain.LineItem, 0, len(o.LineItems))
		for _, li := range o.LineItems {
			if matches(filter, li) {
				items = append(items, li)
			}
		}
		if !filter.IsShop() && len(items) == 0 {
			continue
		}
		orderCopy := o
		orderCopy.LineItems = items
		orderCopy.Refunds = append([]domain.Refund(nil), o.Refunds...)
		result = append(result, orderCopy)
	}
	return result, nil
}

// OrderSpan returns the earliest and latest order timestamps.
func (s *OrderSource) OrderSpan(_ context.Context) (domain.DateRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.orders) == 0 {
		return domain.DateRange{}, storage.ErrNotFound
	}
	return domain.NewDateRange(s.orders[0].CreatedAt, s.orders[len(s.orders)-1].CreatedAt)
}

func inAny(o domain.Order, ranges []domain.DateRange) bool {
	for _, r := range ranges {
		if r.Contains(o.CreatedAt) {
			return true
		}
	}
	return false
}

func matches(f storage.OrderFilter, li domain.LineItem) bool {
	switch {
	case f.IsShop():
		return true
	case len(f.ProductIDs) > 0:
		return slices.Contains(f.ProductIDs, li.ProductID)
	default:
		return li.ListingID == f.ListingID
	}
}

var _ storage.OrderSource = (*OrderSource)(nil)
