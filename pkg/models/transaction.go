package models

import "time"

type Transaction struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	TransactionType string                 `json:"transaction_type"`
	Product         string                 `json:"product"`
	Status          string                 `json:"status"`
	Currency        string                 `json:"currency"`
	Amount          float64                `json:"amount"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       Timestamp              `json:"created_at"`
}

// MetadataString returns metadata[key] when it is a non-empty string.
func (t Transaction) MetadataString(key string) (string, bool) {
	if t.Metadata == nil {
		return "", false
	}
	s, ok := t.Metadata[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// IndexedDocument is the shape written to the search store.
type IndexedDocument struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	TransactionType string                 `json:"transaction_type"`
	Product         string                 `json:"product"`
	Status          string                 `json:"status"`
	Currency        string                 `json:"currency"`
	Amount          float64                `json:"amount"`
	Metadata        map[string]interface{} `json:"metadata"`
	CreatedAt       time.Time              `json:"created_at"`
	SearchContent   string                 `json:"search_content"`

	// Version travels as the bulk action's external version, never in _source.
	Version        int64     `json:"-"`
	UpdatedAt      time.Time `json:"_updated_at"`
	Enriched       bool      `json:"_enriched"`
	EnrichedAt     time.Time `json:"_enriched_at"`
	EventTimestamp time.Time `json:"_event_timestamp"`
	Deleted        bool      `json:"_deleted"`
}

func NewIndexedDocument(tx Transaction) IndexedDocument {
	createdAt := tx.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	metadata := tx.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return IndexedDocument{
		ID:              tx.ID,
		UserID:          tx.UserID,
		TransactionType: tx.TransactionType,
		Product:         tx.Product,
		Status:          tx.Status,
		Currency:        tx.Currency,
		Amount:          tx.Amount,
		Metadata:        metadata,
		CreatedAt:       createdAt,
	}
}
