package postgres

import (
	"context"
	"fmt"
	"time"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// OrderSource implements storage.OrderSource over the orders,
// order_transactions and order_refunds tables.
type OrderSource struct {
	pool *Pool
}

// NewOrderSource creates a new OrderSource.
func NewOrderSource(pool *Pool) *OrderSource {
	return &OrderSource{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderSource = (*OrderSource)(nil)

// lineItemRow is one element of the aggregated transactions column.
type lineItemRow struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	ListingID *int64  `json:"listing_id"`
	ProductID *int64  `json:"product_id"`
}

// entityPredicate returns the order_transactions condition for the filter.
// Parameters $1 and $2 are taken by the range arrays.
func entityPredicate(f storage.OrderFilter) (string, []any) {
	switch {
	case f.IsShop():
		return "TRUE", nil
	case len(f.ProductIDs) > 0:
		return "ot.product_id = ANY($3::bigint[])", []any{f.ProductIDs}
	default:
		return "ot.listing_id = $3", []any{f.ListingID}
	}
}

// FetchOrders loads every order inside any of ranges in one query, with
// refunds and matching line items aggregated per order.
func (s *OrderSource) FetchOrders(ctx context.Context, filter storage.OrderFilter, ranges []domain.DateRange) ([]domain.Order, error) {
	if len(ranges) == 0 {
		return nil, nil
	}

	starts := make([]int64, len(ranges))
	ends := make([]int64, len(ranges))
	for i, r := range ranges {
		starts[i] = r.Start.Unix()
		ends[i] = r.End.Unix()
	}

	predicate, extra := entityPredicate(filter)
	entityExists := ""
	if !filter.IsShop() {
		entityExists = fmt.Sprintf(`
			AND EXISTS (
				SELECT 1 FROM order_transactions ot
				WHERE ot.order_id = o.order_id AND %s
			)`, predicate)
	}

	query := fmt.Sprintf(`
		WITH order_data AS (
			SELECT
				o.order_id,
				o.created_timestamp,
				o.grand_total::float8 AS grand_total,
				COALESCE(o.grand_total_currency_code, '') AS currency,
				o.total_shipping_cost::float8 AS shipping,
				o.total_tax_cost::float8 AS tax,
				o.total_vat_cost::float8 AS vat,
				o.discount_amt::float8 AS discount,
				o.gift_wrap_price::float8 AS gift_wrap,
				o.item_count,
				COALESCE(o.buyer_user_id::text, '') AS buyer_id,
				o.is_shipped,
				o.is_gift,
				COALESCE(o.status, '') AS status,
				COALESCE(o.payment_method, '') AS payment_method,
				COALESCE(o.country, '') AS country
			FROM orders o
			WHERE EXISTS (
				SELECT 1 FROM unnest($1::bigint[], $2::bigint[]) AS r(range_start, range_end)
				WHERE o.created_timestamp BETWEEN r.range_start AND r.range_end
			)%s
		)
		SELECT
			od.*,
			COALESCE((
				SELECT jsonb_agg(rf.amount::float8 ORDER BY rf.id)
				FROM order_refunds rf
				WHERE rf.order_id = od.order_id
			), '[]'::jsonb),
			COALESCE((
				SELECT jsonb_agg(jsonb_build_object(
					'sku', ot.sku,
					'quantity', ot.quantity,
					'price', ot.price::float8,
					'listing_id', ot.listing_id,
					'product_id', ot.product_id
				) ORDER BY ot.id)
				FROM order_transactions ot
				WHERE ot.order_id = od.order_id AND ot.sku IS NOT NULL AND %s
			), '[]'::jsonb)
		FROM order_data od
		ORDER BY od.created_timestamp, od.order_id
	`, entityExists, predicate)

	args := append([]any{starts, ends}, extra...)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		var (
			o       domain.Order
			created int64
			refunds []float64
			items   []lineItemRow
		)
		if err := rows.Scan(
			&o.OrderID, &created, &o.GrandTotal, &o.Currency,
			&o.ShippingCharged, &o.TaxCollected, &o.VATCollected, &o.Discount, &o.GiftWrap,
			&o.ItemCount, &o.BuyerID, &o.IsShipped, &o.IsGift,
			&o.Status, &o.PaymentMethod, &o.Country,
			&refunds, &items,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.CreatedAt = time.Unix(created, 0).UTC()
		for _, amount := range refunds {
			o.Refunds = append(o.Refunds, domain.Refund{Amount: amount})
		}
		for _, it := range items {
			li := domain.LineItem{SKU: it.SKU, Quantity: it.Quantity, UnitPrice: it.Price}
			if it.ListingID != nil {
				li.ListingID = *it.ListingID
			}
			if it.ProductID != nil {
				li.ProductID = *it.ProductID
			}
			o.LineItems = append(o.LineItems, li)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return result, nil
}

// OrderSpan returns the earliest and latest order timestamps.
func (s *OrderSource) OrderSpan(ctx context.Context) (domain.DateRange, error) {
	var minTS, maxTS *int64
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(created_timestamp), MAX(created_timestamp) FROM orders
	`).Scan(&minTS, &maxTS)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("query order span: %w", err)
	}
	if minTS == nil || maxTS == nil {
		return domain.DateRange{}, storage.ErrNotFound
	}
	return domain.NewDateRange(time.Unix(*minTS, 0), time.Unix(*maxTS, 0))
}
