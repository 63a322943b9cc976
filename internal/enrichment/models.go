package enrichment

// Validation is the outcome of ValidateMetadata. Reasons is empty when OK.
type Validation struct {
	OK      bool
	Reasons []string
}

func (v *Validation) fail(reason string) {
	v.OK = false
	v.Reasons = append(v.Reasons, reason)
}

// CategoryEntry is one document of the merchant category catalog.
type CategoryEntry struct {
	Category string `bson:"category"`
	Group    string `bson:"group"`
}

// Derived metadata keys written by EnrichMetadata.
const (
	FieldAmountBucket  = "amount_bucket"
	FieldCategory      = "category"
	FieldMerchantGroup = "merchant_category_group"
	FieldMaskedCard    = "masked_card"
	FieldDirection     = "direction"
	FieldCounterparty  = "counterparty"
	FieldCryptoNetwork = "crypto_network"
)
