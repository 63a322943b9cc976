package enrichment

import (
	"context"
	"fmt"
	"math"
	"time"

	"txindexer/internal/logger"
	"txindexer/pkg/cel"
	"txindexer/pkg/metrics"
	"txindexer/pkg/models"
)

// Enricher is the strategy set. Every method dispatches on the transaction
// category; the default category validates only the common fields and
// passes metadata through.
type Enricher struct {
	catalog *Catalog
	rules   map[Category][]*cel.Rule
	log     logger.Logger
}

func NewEnricher(catalog *Catalog, rules map[Category][]*cel.Rule, log logger.Logger) *Enricher {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if log == nil {
		log = logger.NopLogger()
	}
	return &Enricher{catalog: catalog, rules: rules, log: log}
}

// CompileRules compiles the operator rules keyed by category name.
func CompileRules(eval *cel.Evaluator, raw map[string][]string) (map[Category][]*cel.Rule, error) {
	out := make(map[Category][]*cel.Rule, len(raw))
	for name, exprs := range raw {
		category, ok := ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown rule category %q", name)
		}
		for _, expr := range exprs {
			rule, err := eval.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("rule for %s: %w", name, err)
			}
			out[category] = append(out[category], rule)
		}
	}
	return out, nil
}

func (e *Enricher) ValidateMetadata(ctx context.Context, tx models.Transaction, eventType models.EventType) Validation {
	v := Validation{OK: true}

	if tx.ID == "" {
		v.fail("id is required")
	}

	if eventType != models.EventDeleted {
		if tx.UserID == "" {
			v.fail("user_id is required")
		}
		if tx.Currency == "" {
			v.fail("currency is required")
		}
		if tx.Amount < 0 || math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			v.fail("amount must be a non-negative number")
		}
	}

	category := CategoryOf(tx.TransactionType, tx.Product)
	switch category {
	case CategoryCard:
		validateCard(tx, &v)
	case CategoryP2P:
		validateP2P(tx, &v)
	case CategoryCrypto:
		validateCrypto(tx, &v)
	case CategoryDefault:
	}

	for _, rule := range e.rules[category] {
		ok, err := rule.Evaluate(ctx, tx, eventType)
		if err != nil {
			v.fail(fmt.Sprintf("rule %q could not be evaluated: %v", rule.Expression, err))
			continue
		}
		if !ok {
			v.fail(fmt.Sprintf("rule %q not satisfied", rule.Expression))
		}
	}

	if !v.OK {
		metrics.IncValidationFailure(category.String())
	}
	return v
}

// EnrichMetadata returns a new metadata map; tx.Metadata is not modified.
func (e *Enricher) EnrichMetadata(tx models.Transaction) map[string]interface{} {
	out := make(map[string]interface{}, len(tx.Metadata)+4)
	for k, v := range tx.Metadata {
		out[k] = v
	}

	category := CategoryOf(tx.TransactionType, tx.Product)
	switch category {
	case CategoryCard:
		enrichCard(tx, e.catalog, out)
	case CategoryP2P:
		enrichP2P(tx, out)
	case CategoryCrypto:
		enrichCrypto(tx, out)
	case CategoryDefault:
		return out
	}

	out[FieldCategory] = category.String()
	out[FieldAmountBucket] = amountBucket(tx.Amount)
	return out
}

func (e *Enricher) BuildSearchContent(tx models.Transaction) string {
	switch CategoryOf(tx.TransactionType, tx.Product) {
	case CategoryCard:
		return cardSearchContent(tx)
	case CategoryP2P:
		return p2pSearchContent(tx)
	case CategoryCrypto:
		return cryptoSearchContent(tx)
	default:
		return defaultSearchContent(tx)
	}
}

// BuildDocument produces the unversioned search document for tx.
func (e *Enricher) BuildDocument(tx models.Transaction, enrichedAt time.Time) models.IndexedDocument {
	doc := models.NewIndexedDocument(tx)
	doc.Metadata = e.EnrichMetadata(tx)
	doc.SearchContent = e.BuildSearchContent(tx)
	doc.Enriched = true
	doc.EnrichedAt = enrichedAt.UTC()
	return doc
}
