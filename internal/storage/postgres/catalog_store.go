package postgres

import (
	"context"
	"fmt"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/skukey"
	"shop-analytics/internal/storage"
)

// CatalogStore reads listing membership, inventory snapshots and ad spend.
type CatalogStore struct {
	pool *Pool
}

// NewCatalogStore creates a new CatalogStore.
func NewCatalogStore(pool *Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.CatalogSource   = (*CatalogStore)(nil)
	_ storage.InventorySource = (*CatalogStore)(nil)
	_ storage.AdSpendSource   = (*CatalogStore)(nil)
)

// ListingProducts returns non-deleted listing products with the deleted
// marker removed from their SKU. Products without a SKU are returned with
// an empty SKU.
func (s *CatalogStore) ListingProducts(ctx context.Context) ([]domain.ListingProduct, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT listing_id, product_id, COALESCE(sku, '')
		FROM listing_products
		WHERE is_deleted = FALSE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query listing products: %w", err)
	}
	defer rows.Close()

	var result []domain.ListingProduct
	for rows.Next() {
		var p domain.ListingProduct
		if err := rows.Scan(&p.ListingID, &p.ProductID, &p.SKU); err != nil {
			return nil, fmt.Errorf("scan listing product: %w", err)
		}
		p.SKU = skukey.Base(p.SKU)
		result = append(result, p)
	}
	return result, rows.Err()
}

const inventorySelect = `
	SUM(po.quantity)::bigint,
	COUNT(DISTINCT po.id)::bigint,
	COALESCE(SUM(po.price), 0)::float8,
	COALESCE(MIN(po.price), 0)::float8,
	COALESCE(MAX(po.price), 0)::float8
`

// SKUInventory returns snapshots of enabled offerings keyed by base SKU.
// Rows whose SKUs differ only by the deleted marker are merged.
func (s *CatalogStore) SKUInventory(ctx context.Context) (map[string]domain.InventoryMetrics, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT lp.sku, `+inventorySelect+`
		FROM product_offerings po
		INNER JOIN listing_products lp ON po.listing_product_id = lp.id
		WHERE po.is_enabled = TRUE AND po.is_deleted = FALSE
			AND lp.is_deleted = FALSE AND lp.sku IS NOT NULL
		GROUP BY lp.sku
	`)
	if err != nil {
		return nil, fmt.Errorf("query sku inventory: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.InventoryMetrics)
	for rows.Next() {
		var sku string
		inv, err := scanInventory(rows, &sku)
		if err != nil {
			return nil, err
		}
		key := skukey.Base(sku)
		result[key] = mergeInventory(result[key], inv)
	}
	return result, rows.Err()
}

// ListingInventory returns snapshots of enabled offerings keyed by listing.
func (s *CatalogStore) ListingInventory(ctx context.Context) (map[int64]domain.InventoryMetrics, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT lp.listing_id, `+inventorySelect+`
		FROM product_offerings po
		INNER JOIN listing_products lp ON po.listing_product_id = lp.id
		WHERE po.is_enabled = TRUE AND po.is_deleted = FALSE AND lp.is_deleted = FALSE
		GROUP BY lp.listing_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query listing inventory: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]domain.InventoryMetrics)
	for rows.Next() {
		var listingID int64
		inv, err := scanInventory(rows, &listingID)
		if err != nil {
			return nil, err
		}
		result[listingID] = inv
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInventory(row scanner, key any) (domain.InventoryMetrics, error) {
	var (
		inv      domain.InventoryMetrics
		quantity int64
		variants int64
	)
	if err := row.Scan(key, &quantity, &variants, &inv.PriceSum, &inv.MinPrice, &inv.MaxPrice); err != nil {
		return inv, fmt.Errorf("scan inventory: %w", err)
	}
	inv.TotalInventory = int(quantity)
	inv.ActiveVariants = int(variants)
	return inv, nil
}

func mergeInventory(a, b domain.InventoryMetrics) domain.InventoryMetrics {
	if a.ActiveVariants == 0 {
		return b
	}
	if b.ActiveVariants == 0 {
		return a
	}
	return domain.InventoryMetrics{
		TotalInventory: a.TotalInventory + b.TotalInventory,
		ActiveVariants: a.ActiveVariants + b.ActiveVariants,
		PriceSum:       a.PriceSum + b.PriceSum,
		MinPrice:       min(a.MinPrice, b.MinPrice),
		MaxPrice:       max(a.MaxPrice, b.MaxPrice),
	}
}

const spendExpr = `COALESCE(SUM(CASE WHEN spend_divisor > 0 THEN spend / spend_divisor ELSE spend END), 0)::float8`

// ListingSpend sums spend of one listing for stats rows inside r.
func (s *CatalogStore) ListingSpend(ctx context.Context, listingID int64, r domain.DateRange) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT `+spendExpr+`
		FROM listing_ad_stats
		WHERE listing_id = $1 AND period_start >= $2 AND period_end <= $3
	`, listingID, r.Start, r.End).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query listing ad spend: %w", err)
	}
	return total, nil
}

// ShopSpend sums spend of every listing for stats rows inside r.
func (s *CatalogStore) ShopSpend(ctx context.Context, r domain.DateRange) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT `+spendExpr+`
		FROM listing_ad_stats
		WHERE period_start >= $1 AND period_end <= $2
	`, r.Start, r.End).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query shop ad spend: %w", err)
	}
	return total, nil
}
