package storage

import (
	"context"

	"shop-analytics/internal/domain"
)

// OrderFilter restricts an order fetch to the line items of one entity.
// The zero value selects the whole shop.
type OrderFilter struct {
	ProductIDs []int64 // line items of these products
	ListingID  int64   // used when ProductIDs is empty
}

// IsShop reports whether the filter selects every order.
func (f OrderFilter) IsShop() bool {
	return len(f.ProductIDs) == 0 && f.ListingID == 0
}

// OrderSource is the read-only order/transaction source.
type OrderSource interface {
	// FetchOrders returns orders created inside any of ranges in one round-trip.
	// With a non-empty filter, only orders having a matching line item are
	// returned and each carries only its matching line items.
	FetchOrders(ctx context.Context, filter OrderFilter, ranges []domain.DateRange) ([]domain.Order, error)

	// OrderSpan returns the earliest and latest order timestamps.
	// Returns ErrNotFound when there are no orders.
	OrderSpan(ctx context.Context) (domain.DateRange, error)
}

// CatalogSource provides listing membership.
type CatalogSource interface {
	// ListingProducts returns non-deleted listing products. Products without
	// a SKU carry an empty SKU.
	ListingProducts(ctx context.Context) ([]domain.ListingProduct, error)
}

// InventorySource provides snapshots of enabled offerings.
// Only the absolute inventory fields are populated.
type InventorySource interface {
	// SKUInventory is keyed by SKU with the deleted marker removed.
	SKUInventory(ctx context.Context) (map[string]domain.InventoryMetrics, error)

	// ListingInventory is keyed by listing id.
	ListingInventory(ctx context.Context) (map[int64]domain.InventoryMetrics, error)
}

// AdSpendSource provides advertising spend in settlement currency.
type AdSpendSource interface {
	// ListingSpend sums spend of one listing for stats rows inside r.
	ListingSpend(ctx context.Context, listingID int64, r domain.DateRange) (float64, error)

	// ShopSpend sums spend of all listings for stats rows inside r.
	ShopSpend(ctx context.Context, r domain.DateRange) (float64, error)
}

// ReportStore persists one document per (scope identity, period type, start, end).
type ReportStore interface {
	// Upsert writes reports, overwriting any report with the same natural key.
	Upsert(ctx context.Context, reports []*domain.Report) error

	// Get retrieves one report. Returns ErrNotFound if not exists.
	Get(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.Report, error)

	// List returns every report of a scope kind ordered by identity, period type, start.
	List(ctx context.Context, kind domain.ScopeKind) ([]*domain.Report, error)

	// DeleteAll removes every report of every kind.
	DeleteAll(ctx context.Context) error
}

// CheckpointStore records entities whose periods were all computed.
type CheckpointStore interface {
	// Mark records a completed entity. Marking twice overwrites the run id.
	Mark(ctx context.Context, cp domain.Checkpoint) error

	// Completed returns entity keys already marked for the stage.
	Completed(ctx context.Context, stage domain.ScopeKind) (map[string]bool, error)

	// Clear removes every checkpoint of the stage.
	Clear(ctx context.Context, stage domain.ScopeKind) error
}
