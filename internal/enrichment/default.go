package enrichment

import (
	"fmt"
	"strconv"
	"strings"

	"txindexer/pkg/models"
)

func defaultSearchContent(tx models.Transaction) string {
	return strings.Join([]string{
		tx.TransactionType,
		formatAmount(tx.Amount),
		tx.Currency,
		tx.Status,
	}, " ")
}

// formatAmount renders whole amounts with a trailing ".0" so "100.0 USD"
// matches text already indexed by the previous producer.
func formatAmount(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func joinWithMetadata(parts []string, metadata map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := metadata[key]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func amountBucket(amount float64) string {
	switch {
	case amount < 10:
		return "micro"
	case amount < 100:
		return "small"
	case amount < 1000:
		return "medium"
	case amount < 10000:
		return "large"
	default:
		return "very_large"
	}
}
