package memory

import (
	"context"
	"sync"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// CatalogStore is an in-memory catalog, inventory and ad spend source.
type CatalogStore struct {
	mu               sync.RWMutex
	products         []domain.ListingProduct
	skuInventory     map[string]domain.InventoryMetrics
	listingInventory map[int64]domain.InventoryMetrics
	adStats          []AdRow
}

// AdRow is one advertising stats row covering [Start, End].
type AdRow struct {
	ListingID    int64
	Period       domain.DateRange
	Spend        float64
	SpendDivisor float64 // spend is divided by this when > 0
}

// NewCatalogStore creates a catalog from listing products.
func NewCatalogStore(products ...domain.ListingProduct) *CatalogStore {
	return &CatalogStore{
		products:         products,
		skuInventory:     make(map[string]domain.InventoryMetrics),
		listingInventory: make(map[int64]domain.InventoryMetrics),
	}
}

// SetSKUInventory stores a SKU inventory snapshot.
func (s *CatalogStore) SetSKUInventory(sku string, inv domain.InventoryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skuInventory[sku] = inv
}

// SetListingInventory stores a listing inventory snapshot.
func (s *CatalogStore) SetListingInventory(listingID int64, inv domain.InventoryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listingInventory[listingID] = inv
}

// AddAdRow appends an advertising stats row.
func (s *CatalogStore) AddAdRow(row AdRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adStats = append(s.adStats, row)
}

// ListingProducts returns the stored listing products.
func (s *CatalogStore) ListingProducts(_ context.Context) ([]domain.ListingProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ListingProduct(nil), s.products...), nil
}

// SKUInventory returns a copy of the SKU snapshots.
func (s *CatalogStore) SKUInventory(_ context.Context) (map[string]domain.InventoryMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.InventoryMetrics, len(s.skuInventory))
	for k, v := range s.skuInventory {
		out[k] = v
	}
	return out, nil
}

// ListingInventory returns a copy of the listing snapshots.
func (s *CatalogStore) ListingInventory(_ context.Context) (map[int64]domain.InventoryMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]domain.InventoryMetrics, len(s.listingInventory))
	for k, v := range s.listingInventory {
		out[k] = v
	}
	return out, nil
}

// ListingSpend sums spend of one listing for rows inside r.
func (s *CatalogStore) ListingSpend(_ context.Context, listingID int64, r domain.DateRange) (float64, error) {
	return s.spend(func(row AdRow) bool { return row.ListingID == listingID }, r), nil
}

// ShopSpend sums spend of every listing for rows inside r.
func (s *CatalogStore) ShopSpend(_ context.Context, r domain.DateRange) (float64, error) {
	return s.spend(func(AdRow) bool { return true }, r), nil
}

func (s *CatalogStore) spend(keep func(AdRow) bool, r domain.DateRange) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, row := range s.adStats {
		if !keep(row) || row.Period.Start.Before(r.Start) || row.Period.End.After(r.End) {
			continue
		}
		if row.SpendDivisor > 0 {
			total += row.Spend / row.SpendDivisor
		} else {
			total += row.Spend
		}
	}
	return total
}

var (
	_ storage.CatalogSource   = (*CatalogStore)(nil)
	_ storage.InventorySource = (*CatalogStore)(nil)
	_ storage.AdSpendSource   = (*CatalogStore)(nil)
)
