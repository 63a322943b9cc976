package audit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"txindexer/internal/logger"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/metrics"
	"txindexer/pkg/models"
)

type Entry struct {
	Document  models.IndexedDocument
	EventType models.EventType
}

type Config struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// Writer applies audit entries in the background. Enqueue never blocks:
// when the queue is full the entry is dropped and counted. Entries for one
// document id always land on the same worker, so they apply in enqueue order.
type Writer struct {
	repo    Repository
	cfg     Config
	log     logger.Logger
	queues  []chan Entry
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropLog rate.Sometimes
}

func NewWriter(repo Repository, cfg Config, log logger.Logger) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NopLogger()
	}
	// QueueSize bounds the total; each worker owns an equal share.
	perWorker := (cfg.QueueSize + cfg.Workers - 1) / cfg.Workers
	queues := make([]chan Entry, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan Entry, perWorker)
	}
	return &Writer{
		repo:    repo,
		cfg:     cfg,
		log:     log,
		queues:  queues,
		dropLog: rate.Sometimes{Interval: 10 * time.Second},
	}
}

func (w *Writer) Start() {
	for _, q := range w.queues {
		w.wg.Add(1)
		go w.worker(q)
	}
}

func (w *Writer) queueFor(id string) chan Entry {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return w.queues[h.Sum32()%uint32(len(w.queues))]
}

// Enqueue reports whether the entry was accepted.
func (w *Writer) Enqueue(entry Entry) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		metrics.IncAuditWrite("dropped")
		return false
	}

	select {
	case w.queueFor(entry.Document.ID) <- entry:
		metrics.SetAuditQueueSize(w.Len())
		return true
	default:
		metrics.IncAuditWrite("dropped")
		w.dropLog.Do(func() {
			w.log.Warnw("Audit queue full, dropping write",
				"document_id", entry.Document.ID,
				"queue_size", w.cfg.QueueSize,
			)
		})
		return false
	}
}

func (w *Writer) Len() int {
	n := 0
	for _, q := range w.queues {
		n += len(q)
	}
	return n
}

// Close stops accepting entries and waits for the queue to drain or ctx to end.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		for _, q := range w.queues {
			close(q)
		}
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.log.Warnw("Audit writer closed before queue drained", "pending", w.Len())
		return ctx.Err()
	}
}

func (w *Writer) worker(queue <-chan Entry) {
	defer w.wg.Done()
	for entry := range queue {
		metrics.SetAuditQueueSize(w.Len())
		w.apply(entry)
	}
}

func (w *Writer) apply(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
			w.log.Errorw("Panic recovered in audit writer", "error", err, "document_id", entry.Document.ID)
			metrics.IncAuditWrite("failed")
		}
	}()

	if entry.EventType == models.EventDeleted {
		err = w.repo.Delete(ctx, entry.Document.ID, entry.Document.Version)
	} else {
		err = w.repo.Upsert(ctx, entry.Document)
	}

	switch {
	case err == nil:
		metrics.IncAuditWrite("ok")
	case apperrors.IsRejection(err):
		metrics.IncAuditWrite("rejected")
		w.log.Debugw("Audit write skipped, breaker open", "document_id", entry.Document.ID)
	default:
		metrics.IncAuditWrite("failed")
		w.log.Warnw("Audit write failed",
			"error", err,
			"document_id", entry.Document.ID,
			"event_type", string(entry.EventType),
			"failure_type", apperrors.Classify(err),
		)
	}
}
