package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/metrics"
	"txindexer/pkg/models"
)

type Repository interface {
	Upsert(ctx context.Context, doc models.IndexedDocument) error
	Delete(ctx context.Context, id string, version int64) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert never moves a row back to an older document version.
func (r *PostgresRepository) Upsert(ctx context.Context, doc models.IndexedDocument) error {
	query := `
		INSERT INTO transactions (
			id, user_id, transaction_type, product, status, currency, amount,
			created_at, updated_at, custom_metadata, search_content, doc_version, event_timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			user_id          = EXCLUDED.user_id,
			transaction_type = EXCLUDED.transaction_type,
			product          = EXCLUDED.product,
			status           = EXCLUDED.status,
			currency         = EXCLUDED.currency,
			amount           = EXCLUDED.amount,
			updated_at       = EXCLUDED.updated_at,
			custom_metadata  = EXCLUDED.custom_metadata,
			search_content   = EXCLUDED.search_content,
			doc_version      = EXCLUDED.doc_version,
			event_timestamp  = EXCLUDED.event_timestamp
		WHERE transactions.doc_version <= EXCLUDED.doc_version
	`

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrValidation.WithMessage("metadata is not serializable"))
	}

	var eventTime *time.Time
	if !doc.EventTimestamp.IsZero() {
		eventTime = &doc.EventTimestamp
	}

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		doc.ID, doc.UserID, doc.TransactionType, doc.Product, doc.Status, doc.Currency, doc.Amount,
		doc.CreatedAt, doc.UpdatedAt, string(metadata), doc.SearchContent, doc.Version, eventTime,
	)
	metrics.ObserveDatabaseQueryDuration("postgres", "upsert", time.Since(start))
	if err != nil {
		return classify(err, "upsert", doc.ID)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string, version int64) error {
	query := `DELETE FROM transactions WHERE id = $1 AND doc_version <= $2`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, id, version)
	metrics.ObserveDatabaseQueryDuration("postgres", "delete", time.Since(start))
	if err != nil {
		return classify(err, "delete", id)
	}
	return nil
}

// classify separates rows postgres will never accept from failures worth
// counting against the breaker.
func classify(err error, op, id string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return apperrors.Wrap(err, apperrors.ErrValidation.
				WithMessage(fmt.Sprintf("audit %s rejected for %s: %s", op, id, pqErr.Code.Name())).
				WithDetail("pq_code", string(pqErr.Code)))
		}
	}
	return apperrors.Wrap(err, apperrors.ErrTransientDependency.
		WithMessage(fmt.Sprintf("audit %s failed for %s", op, id)))
}
