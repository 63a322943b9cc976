package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"txindexer/internal/constants"
	"txindexer/pkg/models"
)

type ItemStatus int

const (
	ItemIndexed ItemStatus = iota
	// ItemStale means the store already holds an equal or newer version.
	ItemStale
	ItemFailed
)

func (s ItemStatus) String() string {
	switch s {
	case ItemIndexed:
		return "indexed"
	case ItemStale:
		return "stale"
	default:
		return "failed"
	}
}

type BulkItem struct {
	Document models.IndexedDocument
}

type BulkItemResult struct {
	ID         string
	Status     ItemStatus
	HTTPStatus int
	Reason     string
}

// StoredVersion is what the store currently holds for a document id.
type StoredVersion struct {
	Found     bool
	Version   int64
	EventTime time.Time
	Deleted   bool
}

type Repository interface {
	// BulkIndex returns one result per item, in item order. A non-nil error
	// means the call as a whole failed and no result is meaningful.
	BulkIndex(ctx context.Context, items []BulkItem) ([]BulkItemResult, error)
	GetVersion(ctx context.Context, id string) (StoredVersion, error)
}

type ElasticsearchRepository struct {
	client *elasticsearch.Client
	index  string
}

func NewRepository(client *elasticsearch.Client, index string) *ElasticsearchRepository {
	return &ElasticsearchRepository{client: client, index: index}
}

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	Index       string `json:"_index"`
	ID          string `json:"_id"`
	Version     int64  `json:"version"`
	VersionType string `json:"version_type"`
}

type bulkResponse struct {
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkResponseItem `json:"items"`
}

type bulkResponseItem struct {
	ID     string         `json:"_id"`
	Status int            `json:"status"`
	Error  *bulkItemError `json:"error,omitempty"`
}

type bulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (r *ElasticsearchRepository) BulkIndex(ctx context.Context, items []BulkItem) ([]BulkItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	body, err := r.encodeBulk(items)
	if err != nil {
		return nil, err
	}

	res, err := r.client.Bulk(
		bytes.NewReader(body),
		r.client.Bulk.WithContext(ctx),
		r.client.Bulk.WithIndex(r.index),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("bulk request rejected: %s", readError(res.StatusCode, res.Body))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	if len(parsed.Items) != len(items) {
		return nil, fmt.Errorf("bulk response has %d items, sent %d", len(parsed.Items), len(items))
	}

	results := make([]BulkItemResult, len(items))
	for i, entry := range parsed.Items {
		item := entry["index"]
		results[i] = classifyItem(items[i].Document.ID, item)
	}
	return results, nil
}

func (r *ElasticsearchRepository) encodeBulk(items []BulkItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, item := range items {
		doc := item.Document
		if err := enc.Encode(bulkAction{Index: bulkMeta{
			Index:       r.index,
			ID:          doc.ID,
			Version:     doc.Version,
			VersionType: "external_gte",
		}}); err != nil {
			return nil, fmt.Errorf("encode bulk action for %s: %w", doc.ID, err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
		}
	}

	return buf.Bytes(), nil
}

func classifyItem(id string, item bulkResponseItem) BulkItemResult {
	result := BulkItemResult{ID: id, HTTPStatus: item.Status}

	switch {
	case item.Status >= constants.HTTPStatusOKMin && item.Status < constants.HTTPStatusOKMax:
		result.Status = ItemIndexed
	case item.Status == constants.HTTPStatusConflict:
		result.Status = ItemStale
	default:
		result.Status = ItemFailed
		result.Reason = fmt.Sprintf("status %d", item.Status)
	}

	if item.Error != nil {
		result.Reason = item.Error.Type + ": " + item.Error.Reason
	}
	return result
}

type getResponse struct {
	Found   bool         `json:"found"`
	Version int64        `json:"_version"`
	Source  storedSource `json:"_source"`
}

type storedSource struct {
	EventTimestamp time.Time `json:"_event_timestamp"`
	Deleted        bool      `json:"_deleted"`
}

func (r *ElasticsearchRepository) GetVersion(ctx context.Context, id string) (StoredVersion, error) {
	res, err := r.client.Get(
		r.index,
		id,
		r.client.Get.WithContext(ctx),
		r.client.Get.WithSourceIncludes("_event_timestamp", "_deleted"),
	)
	if err != nil {
		return StoredVersion{}, fmt.Errorf("get request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return StoredVersion{}, nil
	}
	if res.IsError() {
		return StoredVersion{}, fmt.Errorf("get request rejected: %s", readError(res.StatusCode, res.Body))
	}

	var parsed getResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return StoredVersion{}, fmt.Errorf("decode get response: %w", err)
	}

	return StoredVersion{
		Found:     parsed.Found,
		Version:   parsed.Version,
		EventTime: parsed.Source.EventTimestamp,
		Deleted:   parsed.Source.Deleted,
	}, nil
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (r *ElasticsearchRepository) EnsureIndex(ctx context.Context) (bool, error) {
	res, err := r.client.Indices.Exists([]string{r.index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("index exists request failed: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return false, nil
	}
	if res.StatusCode != http.StatusNotFound {
		return false, fmt.Errorf("index exists request returned status %d", res.StatusCode)
	}

	res, err = r.client.Indices.Create(
		r.index,
		r.client.Indices.Create.WithContext(ctx),
		r.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return false, fmt.Errorf("index create request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body := readError(res.StatusCode, res.Body)
		if strings.Contains(body, "resource_already_exists_exception") {
			return false, nil
		}
		return false, fmt.Errorf("index create rejected: %s", body)
	}
	return true, nil
}

func (r *ElasticsearchRepository) Ping(ctx context.Context) error {
	res, err := r.client.Ping(r.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping returned status %d", res.StatusCode)
	}
	return nil
}

func readError(status int, body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	return fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(raw)))
}
