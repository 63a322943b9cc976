package enrichment

import (
	"context"
	"strings"

	"txindexer/internal/logger"
)

var defaultGroups = map[string]string{
	"restaurant":    "food_and_drink",
	"food":          "food_and_drink",
	"coffee":        "food_and_drink",
	"bar":           "food_and_drink",
	"grocery":       "groceries",
	"supermarket":   "groceries",
	"travel":        "travel",
	"airline":       "travel",
	"hotel":         "travel",
	"fuel":          "transport",
	"gas":           "transport",
	"taxi":          "transport",
	"electronics":   "shopping",
	"retail":        "shopping",
	"clothing":      "shopping",
	"entertainment": "entertainment",
	"streaming":     "entertainment",
	"health":        "health",
	"pharmacy":      "health",
	"utilities":     "bills",
}

const unknownGroup = "other"

// Catalog maps merchant categories to reporting groups. A Catalog is never
// modified after construction, so it is safe to share across partitions.
type Catalog struct {
	groups map[string]string
}

func DefaultCatalog() *Catalog {
	return NewCatalog(nil)
}

// NewCatalog overlays entries on the built-in groups.
func NewCatalog(entries []CategoryEntry) *Catalog {
	groups := make(map[string]string, len(defaultGroups)+len(entries))
	for k, v := range defaultGroups {
		groups[k] = v
	}
	for _, e := range entries {
		if e.Category == "" || e.Group == "" {
			continue
		}
		groups[strings.ToLower(e.Category)] = e.Group
	}
	return &Catalog{groups: groups}
}

func (c *Catalog) Group(category string) string {
	if g, ok := c.groups[strings.ToLower(strings.TrimSpace(category))]; ok {
		return g
	}
	return unknownGroup
}

func (c *Catalog) Len() int {
	return len(c.groups)
}

// LoadCatalog reads the catalog once. Any repository failure keeps the
// built-in groups.
func LoadCatalog(ctx context.Context, repo Repository, log logger.Logger) *Catalog {
	if repo == nil {
		return DefaultCatalog()
	}

	entries, err := repo.ListCategories(ctx)
	if err != nil {
		log.Warnw("Failed to load merchant category catalog, using built-in defaults", "error", err)
		return DefaultCatalog()
	}

	catalog := NewCatalog(entries)
	log.Infow("Merchant category catalog loaded", "entries", len(entries), "groups", catalog.Len())
	return catalog
}
