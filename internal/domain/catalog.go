package domain

import "sort"

// ListingProduct links a SKU variant to the listing that sells it.
type ListingProduct struct {
	ListingID int64
	ProductID int64
	SKU       string // stored spelling, deleted marker removed; empty when the variant has none
}

// Catalog is an immutable snapshot of listing membership.
//
// Every order line is attributed to exactly one listing: a product carrying
// a SKU belongs to the listing that owns the SKU, a product without one to
// its own listing.
type Catalog struct {
	listingSKUs  map[int64][]string
	skuListing   map[string]int64
	skuProducts  map[string][]int64
	bareProducts map[int64][]int64
	productOwner map[int64]int64
	skus         []string
	listings     []int64
}

// NewCatalog indexes listing products. A SKU sold under several listings
// belongs to the first listing seen. Rows without a SKU still register
// their listing.
func NewCatalog(products []ListingProduct) *Catalog {
	c := &Catalog{
		listingSKUs:  make(map[int64][]string),
		skuListing:   make(map[string]int64),
		skuProducts:  make(map[string][]int64),
		bareProducts: make(map[int64][]int64),
		productOwner: make(map[int64]int64),
	}
	seen := make(map[int64]map[string]bool)
	for _, p := range products {
		if p.ListingID <= 0 {
			continue
		}
		if seen[p.ListingID] == nil {
			seen[p.ListingID] = make(map[string]bool)
			c.listings = append(c.listings, p.ListingID)
		}
		if p.SKU == "" {
			if p.ProductID > 0 {
				if _, ok := c.productOwner[p.ProductID]; !ok {
					c.productOwner[p.ProductID] = p.ListingID
					c.bareProducts[p.ListingID] = append(c.bareProducts[p.ListingID], p.ProductID)
				}
			}
			continue
		}

		if !seen[p.ListingID][p.SKU] {
			seen[p.ListingID][p.SKU] = true
			c.listingSKUs[p.ListingID] = append(c.listingSKUs[p.ListingID], p.SKU)
		}
		if _, ok := c.skuListing[p.SKU]; !ok {
			c.skuListing[p.SKU] = p.ListingID
			c.skus = append(c.skus, p.SKU)
		}
		if p.ProductID > 0 {
			c.skuProducts[p.SKU] = append(c.skuProducts[p.SKU], p.ProductID)
			if _, ok := c.productOwner[p.ProductID]; !ok {
				c.productOwner[p.ProductID] = c.skuListing[p.SKU]
			}
		}
	}
	sort.Strings(c.skus)
	sort.Slice(c.listings, func(i, j int) bool { return c.listings[i] < c.listings[j] })
	return c
}

// SKUs returns every distinct SKU, sorted.
func (c *Catalog) SKUs() []string { return c.skus }

// Listings returns every listing id, ascending.
func (c *Catalog) Listings() []int64 { return c.listings }

// SKUsForListing returns the listing's SKUs in catalog order, including
// SKUs owned by another listing.
func (c *Catalog) SKUsForListing(listingID int64) []string { return c.listingSKUs[listingID] }

// OwnedSKUs returns the listing's SKUs that no earlier listing owns.
func (c *Catalog) OwnedSKUs(listingID int64) []string {
	var out []string
	for _, sku := range c.listingSKUs[listingID] {
		if c.skuListing[sku] == listingID {
			out = append(out, sku)
		}
	}
	return out
}

// ListingForSKU returns the owning listing, or 0.
func (c *Catalog) ListingForSKU(sku string) int64 { return c.skuListing[sku] }

// ProductIDsForSKU returns the product ids recorded under the SKU.
func (c *Catalog) ProductIDsForSKU(sku string) []int64 { return c.skuProducts[sku] }

// BareProductIDs returns the listing's product ids that carry no SKU.
func (c *Catalog) BareProductIDs(listingID int64) []int64 { return c.bareProducts[listingID] }

// OwnedProductIDs returns every product id attributed to the listing: the
// products of its owned SKUs, wherever they are listed, and its bare
// products.
func (c *Catalog) OwnedProductIDs(listingID int64) []int64 {
	var out []int64
	for _, sku := range c.OwnedSKUs(listingID) {
		out = append(out, c.skuProducts[sku]...)
	}
	return append(out, c.bareProducts[listingID]...)
}

// OwnerOfProduct returns the listing a product's orders are attributed to.
func (c *Catalog) OwnerOfProduct(productID int64) (int64, bool) {
	id, ok := c.productOwner[productID]
	return id, ok
}
