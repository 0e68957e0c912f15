package domain

import (
	"fmt"
	"strconv"
)

// ScopeKind tags which entity a metrics document describes.
type ScopeKind string

// Scope kinds, leaf first.
const (
	ScopeProduct ScopeKind = "product"
	ScopeListing ScopeKind = "listing"
	ScopeShop    ScopeKind = "shop"
)

// Scope identifies the entity a document describes.
// Exactly one of SKU/ListingID is meaningful depending on Kind.
type Scope struct {
	Kind      ScopeKind
	SKU       string // ScopeProduct
	ListingID int64  // ScopeListing
}

// ProductScope builds a product (SKU) scope.
func ProductScope(sku string) Scope { return Scope{Kind: ScopeProduct, SKU: sku} }

// ListingScope builds a listing scope.
func ListingScope(listingID int64) Scope { return Scope{Kind: ScopeListing, ListingID: listingID} }

// ShopScope builds the shop scope.
func ShopScope() Scope { return Scope{Kind: ScopeShop} }

// Identity returns the scope's natural key component.
func (s Scope) Identity() string {
	switch s.Kind {
	case ScopeProduct:
		return s.SKU
	case ScopeListing:
		return strconv.FormatInt(s.ListingID, 10)
	default:
		return "shop"
	}
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Identity())
}

// Validate checks the tagged union is well formed.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeProduct:
		if s.SKU == "" {
			return fmt.Errorf("product scope requires sku")
		}
	case ScopeListing:
		if s.ListingID <= 0 {
			return fmt.Errorf("listing scope requires positive listing id")
		}
	case ScopeShop:
	default:
		return fmt.Errorf("unknown scope kind %q", s.Kind)
	}
	return nil
}
