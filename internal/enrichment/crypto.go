package enrichment

import (
	"strings"

	"txindexer/pkg/models"
)

var cryptoNetworks = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "ethereum",
	"USDC": "ethereum",
	"SOL":  "solana",
	"LTC":  "litecoin",
	"XRP":  "ripple",
	"DOGE": "dogecoin",
}

func validateCrypto(tx models.Transaction, v *Validation) {
	if _, ok := tx.MetadataString("crypto_type"); !ok {
		return
	}
	if _, ok := tx.MetadataString("wallet_address"); !ok {
		v.fail("wallet_address is required when crypto_type is set")
	}
}

func enrichCrypto(tx models.Transaction, out map[string]interface{}) {
	cryptoType, ok := tx.MetadataString("crypto_type")
	if !ok {
		return
	}
	network, known := cryptoNetworks[strings.ToUpper(cryptoType)]
	if !known {
		network = "unknown"
	}
	out[FieldCryptoNetwork] = network
}

func cryptoSearchContent(tx models.Transaction) string {
	parts := []string{
		"Crypto " + formatAmount(tx.Amount) + " " + tx.Currency,
		tx.Status,
	}
	return joinWithMetadata(parts, tx.Metadata, "crypto_type", "wallet_address")
}
