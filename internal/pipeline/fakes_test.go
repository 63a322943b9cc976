package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"txindexer/internal/audit"
	"txindexer/internal/broker"
	"txindexer/internal/deadletter"
	"txindexer/internal/enrichment"
	"txindexer/internal/idempotency"
	"txindexer/internal/search"
	"txindexer/internal/versioning"
	"txindexer/pkg/models"
	"txindexer/pkg/retry"
)

type fakeSource struct {
	mu       sync.Mutex
	records  []broker.Record
	pos      int
	commits  []int64
	seeks    []int64
	// pollWait is how long an empty Fetch waits, 1ms when zero.
	pollWait time.Duration
}

func (s *fakeSource) Topic() string  { return "transactions" }
func (s *fakeSource) Partition() int { return 0 }

func (s *fakeSource) push(values ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		s.records = append(s.records, broker.Record{
			Topic:     "transactions",
			Partition: 0,
			Offset:    int64(len(s.records)),
			Value:     []byte(v),
			Time:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
}

func (s *fakeSource) Fetch(ctx context.Context) (broker.Record, error) {
	s.mu.Lock()
	if s.pos < len(s.records) {
		rec := s.records[s.pos]
		s.pos++
		s.mu.Unlock()
		return rec, nil
	}
	wait := s.pollWait
	s.mu.Unlock()
	if wait == 0 {
		wait = time.Millisecond
	}

	select {
	case <-ctx.Done():
		return broker.Record{}, ctx.Err()
	case <-time.After(wait):
		return broker.Record{}, broker.ErrPollTimeout
	}
}

func (s *fakeSource) Commit(ctx context.Context, next int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, next)
	return nil
}

func (s *fakeSource) Seek(offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, offset)
	s.pos = int(offset)
	return nil
}

func (s *fakeSource) lastCommit() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commits) == 0 {
		return -1
	}
	return s.commits[len(s.commits)-1]
}

func (s *fakeSource) fetched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *fakeSource) seekCalls() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seeks...)
}

type storedDoc struct {
	doc    models.IndexedDocument
	writes int
}

// fakeSearch applies external_gte semantics per document id.
type fakeSearch struct {
	mu       sync.Mutex
	docs     map[string]*storedDoc
	calls    int
	batches  []int
	callErr  func(call int) error
	itemFail func(id string) bool
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{docs: make(map[string]*storedDoc)}
}

func (f *fakeSearch) BulkIndex(ctx context.Context, items []search.BulkItem) ([]search.BulkItemResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.callErr != nil {
		if err := f.callErr(f.calls); err != nil {
			return nil, err
		}
	}
	f.batches = append(f.batches, len(items))

	results := make([]search.BulkItemResult, len(items))
	for i, item := range items {
		id := item.Document.ID
		results[i].ID = id
		if f.itemFail != nil && f.itemFail(id) {
			results[i].Status = search.ItemFailed
			results[i].HTTPStatus = 429
			results[i].Reason = "es_rejected_execution_exception"
			continue
		}
		current, ok := f.docs[id]
		if ok && item.Document.Version < current.doc.Version {
			results[i].Status = search.ItemStale
			results[i].HTTPStatus = 409
			continue
		}
		if !ok {
			current = &storedDoc{}
			f.docs[id] = current
		}
		current.doc = item.Document
		current.writes++
		results[i].Status = search.ItemIndexed
		results[i].HTTPStatus = 201
	}
	return results, nil
}

func (f *fakeSearch) GetVersion(ctx context.Context, id string) (search.StoredVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return search.StoredVersion{}, nil
	}
	return search.StoredVersion{
		Found:     true,
		Version:   d.doc.Version,
		EventTime: d.doc.EventTimestamp,
		Deleted:   d.doc.Deleted,
	}, nil
}

// put overwrites the stored document as if another writer had indexed it.
func (f *fakeSearch) put(doc models.IndexedDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = &storedDoc{doc: doc, writes: 1}
}

func (f *fakeSearch) get(id string) (storedDoc, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return storedDoc{}, false
	}
	return *d, true
}

func (f *fakeSearch) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batches...)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	accept  bool
}

func (f *fakeAudit) Enqueue(entry audit.Entry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.accept
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type sentLetter struct {
	msg   deadletter.Message
	cause error
}

type fakeDeadLetter struct {
	mu   sync.Mutex
	sent []sentLetter
	fail bool
}

func (f *fakeDeadLetter) Send(ctx context.Context, msg deadletter.Message, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("dead-letter topic unreachable")
	}
	f.sent = append(f.sent, sentLetter{msg: msg, cause: cause})
	return nil
}

func (f *fakeDeadLetter) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeDeadLetter) letters() []sentLetter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentLetter(nil), f.sent...)
}

type panickingEnricher struct {
	Enricher
	mu     sync.Mutex
	panics int
}

func (p *panickingEnricher) ValidateMetadata(ctx context.Context, tx models.Transaction, eventType models.EventType) enrichment.Validation {
	p.mu.Lock()
	if p.panics > 0 {
		p.panics--
		p.mu.Unlock()
		panic("enricher exploded")
	}
	p.mu.Unlock()
	return p.Enricher.ValidateMetadata(ctx, tx, eventType)
}

type harness struct {
	t       *testing.T
	src     *fakeSource
	search  *fakeSearch
	audit   *fakeAudit
	dlq     *fakeDeadLetter
	tracker *idempotency.Tracker
	cfg     Config
	deps    Dependencies
	worker  *PartitionWorker
	cancel  context.CancelFunc
	done    chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	versioner, err := versioning.NewVersioner(128, nil, nil)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		src:     &fakeSource{},
		search:  newFakeSearch(),
		audit:   &fakeAudit{accept: true},
		dlq:     &fakeDeadLetter{},
		tracker: idempotency.NewTracker(idempotency.Config{LocalCacheSize: 128, TTL: time.Hour}, nil, nil),
		cfg: Config{
			BatchSize:    3,
			BatchTimeout: time.Hour,
			MaxRetries:   3,
			Retry: retry.Policy{
				InitialInterval: time.Millisecond,
				MaxInterval:     2 * time.Millisecond,
				Multiplier:      1.5,
			},
			ShutdownTimeout: 5 * time.Second,
			ProcessedTTL:    time.Hour,
			RewindDelay:     5 * time.Millisecond,
		},
	}
	h.deps = Dependencies{
		Tracker:    h.tracker,
		Enricher:   enrichment.NewEnricher(nil, nil, nil),
		Versioner:  versioner,
		Search:     h.search,
		Audit:      h.audit,
		DeadLetter: h.dlq,
	}
	return h
}

func (h *harness) start() {
	h.worker = NewPartitionWorker(h.src, h.cfg, h.deps)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.worker.Run(ctx) }()
	h.t.Cleanup(h.stop)
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		require.NoError(h.t, err)
	case <-time.After(5 * time.Second):
		h.t.Fatal("worker did not stop")
	}
}

func (h *harness) waitCommit(next int64) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.src.lastCommit() == next },
		2*time.Second, time.Millisecond, "expected commit of offset %d, last was %d", next, h.src.lastCommit())
}

func envelope(eventType, id, ts string, version int64) string {
	v := ""
	if version > 0 {
		v = fmt.Sprintf(`,"version":%d`, version)
	}
	return fmt.Sprintf(`{"event_type":%q,"transaction":{"id":%q,"user_id":"user-1","transaction_type":"card","product":"Card","status":"completed","currency":"USD","amount":12.5,"metadata":{"merchant":"Starbucks","merchant_category":"food"},"created_at":"2024-01-01T00:00:00"},"timestamp":%q%s}`,
		eventType, id, ts, v)
}

func withStatus(env, status string) string {
	return strings.Replace(env, `"status":"completed"`, fmt.Sprintf(`"status":%q`, status), 1)
}

func deletedEnvelope(id, ts string, version int64) string {
	return fmt.Sprintf(`{"event_type":"transaction.deleted","transaction":{"id":%q},"timestamp":%q,"version":%d}`, id, ts, version)
}

func fingerprintOf(env models.EventEnvelope) string {
	return idempotency.Fingerprint(env)
}
