package enrichment

import (
	"txindexer/pkg/models"
)

func validateCard(tx models.Transaction, v *Validation) {
	if last4, ok := tx.MetadataString("card_last_four"); ok && !isDigits(last4, 4) {
		v.fail("card_last_four must be exactly four digits")
	}
}

func enrichCard(tx models.Transaction, catalog *Catalog, out map[string]interface{}) {
	if category, ok := tx.MetadataString("merchant_category"); ok {
		out[FieldMerchantGroup] = catalog.Group(category)
	}
	if last4, ok := tx.MetadataString("card_last_four"); ok && isDigits(last4, 4) {
		out[FieldMaskedCard] = "**** **** **** " + last4
	}
}

func cardSearchContent(tx models.Transaction) string {
	parts := []string{
		"Card payment " + formatAmount(tx.Amount) + " " + tx.Currency,
		tx.Status,
	}
	return joinWithMetadata(parts, tx.Metadata, "merchant_name", "merchant_category", "location")
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
