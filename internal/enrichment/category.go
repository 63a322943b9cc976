package enrichment

import "strings"

// Category selects the enrichment strategy for a transaction.
type Category int

const (
	CategoryDefault Category = iota
	CategoryCard
	CategoryP2P
	CategoryCrypto
)

func (c Category) String() string {
	switch c {
	case CategoryCard:
		return "card"
	case CategoryP2P:
		return "p2p"
	case CategoryCrypto:
		return "crypto"
	default:
		return "default"
	}
}

// ParseCategory maps a config key to its category.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(s) {
	case "card":
		return CategoryCard, true
	case "p2p":
		return CategoryP2P, true
	case "crypto":
		return CategoryCrypto, true
	case "default":
		return CategoryDefault, true
	default:
		return CategoryDefault, false
	}
}

// CategoryOf prefers transaction_type and falls back to product.
// Anything unrecognised is CategoryDefault, never an error.
func CategoryOf(transactionType, product string) Category {
	if c, ok := categoryFromField(transactionType); ok {
		return c
	}
	if c, ok := categoryFromField(product); ok {
		return c
	}
	return CategoryDefault
}

func categoryFromField(v string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "card", "card_payment":
		return CategoryCard, true
	case "p2p", "p2p_transfer":
		return CategoryP2P, true
	case "crypto", "crypto_transaction":
		return CategoryCrypto, true
	default:
		return CategoryDefault, false
	}
}
