// Package skukey canonicalizes SKU spellings so database and reference-table
// identifiers that differ only by marker prefixes or case compare equal.
package skukey

import "strings"

// Prefixes are stripped from the head of a SKU, in this order, until none match.
var Prefixes = []string{
	"DELETED-",
	"OT-",
	"ZSTK-",
	"MG-",
	"LND-",
	"EU-",
	"US-",
	"UK-",
	"CA-",
	"AU-",
	"JP-",
}

// DeletedMarker prefixes SKUs of variants removed from sale.
const DeletedMarker = "DELETED-"

// Normalize returns the canonical lowercase key for a raw SKU.
// It is total and idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		stripped := false
		for _, p := range Prefixes {
			if hasPrefixFold(s, p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Base strips only the deleted marker and surrounding space, keeping the
// stored spelling otherwise. Used as the product scope identity.
func Base(raw string) string {
	s := strings.TrimSpace(raw)
	for hasPrefixFold(s, DeletedMarker) {
		s = strings.TrimSpace(s[len(DeletedMarker):])
	}
	return s
}

// Equal reports whether two raw SKUs share a normalized key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
