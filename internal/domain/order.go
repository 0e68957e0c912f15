package domain

import (
	"strings"
	"time"
)

// Order is a marketplace order as read from the order source.
// Orders are immutable inputs; the engine never writes them back.
type Order struct {
	OrderID   int64
	CreatedAt time.Time // UTC

	// Amounts in settlement currency
	GrandTotal      float64 // what the buyer paid, includes shipping/tax/vat/gift wrap
	ShippingCharged float64
	TaxCollected    float64
	VATCollected    float64
	Discount        float64
	GiftWrap        float64

	ItemCount     int
	BuyerID       string // empty when unknown
	IsShipped     bool
	IsGift        bool
	Status        string
	PaymentMethod string
	Country       string // ISO code or name; empty defaults to US
	Currency      string // empty defaults to USD

	Refunds   []Refund
	LineItems []LineItem
}

// LineItem is one SKU line of an order.
type LineItem struct {
	SKU       string
	Quantity  int
	UnitPrice float64
	ListingID int64 // 0 when unknown
	ProductID int64 // 0 when unknown
}

// Refund is a single refund issued against an order.
type Refund struct {
	Amount float64
}

// Order status values treated as cancelled.
const (
	StatusCancelled = "cancelled"
	StatusCanceled  = "canceled"
)

// DefaultCurrency is assumed when an order carries no currency code.
const DefaultCurrency = "USD"

// IsCancelled reports whether the order status marks it as cancelled.
func (o *Order) IsCancelled() bool {
	s := strings.ToLower(strings.TrimSpace(o.Status))
	return s == StatusCancelled || s == StatusCanceled
}

// SettlementCurrency returns the order currency, defaulting to USD.
func (o *Order) SettlementCurrency() string {
	if c := strings.ToUpper(strings.TrimSpace(o.Currency)); c != "" {
		return c
	}
	return DefaultCurrency
}

// RefundTotal sums all refund amounts of the order.
func (o *Order) RefundTotal() float64 {
	var total float64
	for _, r := range o.Refunds {
		total += r.Amount
	}
	return total
}
