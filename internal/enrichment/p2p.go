package enrichment

import (
	"strings"

	"txindexer/pkg/models"
)

func normalizeDirection(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent", "send", "outgoing", "out", "debit":
		return "sent", true
	case "received", "receive", "incoming", "in", "credit":
		return "received", true
	default:
		return "", false
	}
}

func validateP2P(tx models.Transaction, v *Validation) {
	if direction, ok := tx.MetadataString("direction"); ok {
		if _, valid := normalizeDirection(direction); !valid {
			v.fail("direction must be sent or received")
		}
	}
}

func enrichP2P(tx models.Transaction, out map[string]interface{}) {
	if direction, ok := tx.MetadataString("direction"); ok {
		if normalized, valid := normalizeDirection(direction); valid {
			out[FieldDirection] = normalized
		}
	}
	if name, ok := tx.MetadataString("peer_name"); ok {
		out[FieldCounterparty] = name
	} else if email, ok := tx.MetadataString("peer_email"); ok {
		out[FieldCounterparty] = email
	}
}

func p2pSearchContent(tx models.Transaction) string {
	parts := []string{
		"P2P transfer " + formatAmount(tx.Amount) + " " + tx.Currency,
		tx.Status,
	}
	return joinWithMetadata(parts, tx.Metadata, "peer_name", "peer_email", "direction")
}
