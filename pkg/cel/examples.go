package cel

// RuleExamples lists validation rules an operator can place under
// enrichment.rules in the config file.
var RuleExamples = map[string]string{
	"amount_cap":         `tx.amount <= 1000000.0`,
	"known_currency":     `tx.currency in ["USD", "EUR", "GBP", "BTC", "ETH"]`,
	"card_has_merchant":  `has(metadata.merchant_name) && metadata.merchant_name != ""`,
	"p2p_has_peer":       `has(metadata.peer_name) || has(metadata.peer_email)`,
	"crypto_wallet_len":  `!has(metadata.wallet_address) || size(metadata.wallet_address) >= 26`,
	"no_zero_on_create":  `event_type != "created" || tx.amount > 0.0`,
	"status_is_terminal": `tx.status in ["pending", "completed", "failed", "cancelled"]`,
}
