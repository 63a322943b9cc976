package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"txindexer/internal/audit"
	"txindexer/internal/batch"
	"txindexer/internal/broker"
	"txindexer/internal/constants"
	"txindexer/internal/deadletter"
	"txindexer/internal/idempotency"
	"txindexer/internal/logger"
	"txindexer/internal/search"
	"txindexer/internal/versioning"
	apperrors "txindexer/pkg/errors"
	"txindexer/pkg/logging"
	"txindexer/pkg/metrics"
	"txindexer/pkg/models"
	"txindexer/pkg/retry"
	"txindexer/pkg/tracing"
)

// record is one admitted log record travelling through a batch.
type record struct {
	raw         broker.Record
	env         models.EventEnvelope
	fingerprint string
	doc         models.IndexedDocument
	decision    *versioning.Decision
	reversioned bool
	attempts    int
	firstSeen   time.Time
	lastErr     error
	failed      bool
	done        bool
}

// PartitionWorker processes one partition strictly in order. It is driven by
// a single goroutine; only State is safe to call from elsewhere.
type PartitionWorker struct {
	cfg     Config
	deps    Dependencies
	src     broker.PartitionSource
	log     logger.Logger
	acc     *batch.Accumulator[*record]
	offsets *offsetTracker
	inBatch map[string]struct{}
	// carry holds records whose flush was interrupted by cancellation.
	carry  []*record
	halted bool
	state  atomic.Int32
	now    func() time.Time
}

func NewPartitionWorker(src broker.PartitionSource, cfg Config, deps Dependencies) *PartitionWorker {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	w := &PartitionWorker{
		cfg:     cfg,
		deps:    deps,
		src:     src,
		log:     log,
		offsets: newOffsetTracker(),
		inBatch: make(map[string]struct{}),
		now:     time.Now,
	}
	w.acc = batch.NewAccumulator[*record](cfg.BatchSize, cfg.BatchTimeout, batch.WithClock(func() time.Time { return w.now() }))
	return w
}

func (w *PartitionWorker) State() State {
	return State(w.state.Load())
}

func (w *PartitionWorker) setState(s State) {
	w.state.Store(int32(s))
	metrics.SetPartitionState(w.src.Partition(), int(s))
}

// Run consumes until ctx is cancelled, then drains the in-flight batch with a
// detached context bounded by the shutdown timeout.
func (w *PartitionWorker) Run(ctx context.Context) error {
	ctx = logging.WithPartition(ctx, w.src.Topic(), w.src.Partition())
	defer w.setState(StateStopped)

	// Versions cached under a previous assignment may lag the store.
	w.deps.Versioner.Purge()

	w.log.InfowCtx(ctx, "Partition worker started",
		"batch_size", w.cfg.BatchSize,
		"batch_timeout", w.cfg.BatchTimeout,
	)

	for {
		if ctx.Err() != nil {
			return w.drain(ctx)
		}

		w.setState(StatePolling)
		rec, err := w.fetch(ctx)
		idle := false
		switch {
		case err == nil:
			w.handle(ctx, rec)
		case errors.Is(err, broker.ErrPollTimeout):
			idle = true
		case ctx.Err() != nil:
			return w.drain(ctx)
		default:
			w.log.ErrorwCtx(ctx, "Failed to fetch record", "error", err)
			if !sleep(ctx, w.cfg.RewindDelay) {
				return w.drain(ctx)
			}
			continue
		}

		flushed := false
		if w.halted || w.acc.ShouldFlush(w.now()) {
			w.flush(ctx)
			flushed = true
		}
		w.maybeCommit(ctx, flushed || idle)

		if w.halted {
			w.rewind(ctx)
		}
	}
}

// fetch bounds the poll by the open batch's age deadline so a partial batch
// flushes on time even when the source would wait longer.
func (w *PartitionWorker) fetch(ctx context.Context) (broker.Record, error) {
	deadline := w.acc.Deadline()
	if deadline.IsZero() {
		return w.src.Fetch(ctx)
	}
	remaining := deadline.Sub(w.now())
	if remaining <= 0 {
		return broker.Record{}, broker.ErrPollTimeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	rec, err := w.src.Fetch(pollCtx)
	if err != nil && ctx.Err() == nil && pollCtx.Err() != nil {
		return broker.Record{}, broker.ErrPollTimeout
	}
	return rec, err
}

func (w *PartitionWorker) handle(ctx context.Context, raw broker.Record) {
	w.offsets.track(raw.Offset)
	metrics.IncConsumed(raw.Topic, raw.Partition)

	ctx, span := tracing.StartRecordSpan(ctx, raw.Topic, raw.Partition, raw.Offset, raw.Headers)
	defer span.End()
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}

	firstSeen := w.now()
	sched := retry.NewSchedule(w.cfg.Retry)
	for attempts := 1; ; attempts++ {
		err := w.safeAdmit(ctx, raw, firstSeen)
		if err == nil {
			return
		}
		if attempts > w.cfg.MaxRetries {
			w.deadLetter(ctx, &record{raw: raw, firstSeen: firstSeen, attempts: attempts}, err)
			return
		}
		metrics.IncRetry(apperrors.Classify(err))
		w.log.WarnwCtx(ctx, "Retrying record admission", "error", err, "attempt", attempts, "offset", raw.Offset)
		if sched.Wait(ctx) != nil {
			// Left unresolved; the offset is not committed and the record is redelivered.
			return
		}
	}
}

func (w *PartitionWorker) safeAdmit(ctx context.Context, raw broker.Record, firstSeen time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
			w.log.ErrorwCtx(ctx, "Panic recovered while admitting record", "error", err, "offset", raw.Offset)
		}
	}()
	return w.admit(ctx, raw, firstSeen)
}

// admit decodes, deduplicates, validates and enriches one record. Every path
// either resolves the offset or adds the record to the batch.
func (w *PartitionWorker) admit(ctx context.Context, raw broker.Record, firstSeen time.Time) error {
	w.setState(StateDeduping)

	env, err := models.DecodeEnvelope(raw.Value)
	if err != nil {
		w.deadLetter(ctx, &record{raw: raw, firstSeen: firstSeen},
			apperrors.Wrap(err, apperrors.ErrValidation.WithMessage(err.Error())))
		return nil
	}

	fp := idempotency.Fingerprint(env)
	ctx = logging.WithMessageID(ctx, fp)
	r := &record{raw: raw, env: env, fingerprint: fp, firstSeen: firstSeen}

	if _, queued := w.inBatch[fp]; queued || w.deps.Tracker.IsProcessed(ctx, fp) {
		metrics.IncProcessed(constants.OutcomeDuplicate)
		w.log.DebugwCtx(ctx, "Duplicate message detected, skipping",
			"transaction_id", env.Transaction.ID,
			"offset", raw.Offset,
		)
		w.offsets.resolve(raw.Offset)
		return nil
	}

	w.setState(StateEnriching)
	if v := w.deps.Enricher.ValidateMetadata(ctx, env.Transaction, env.EventType); !v.OK {
		w.deadLetter(ctx, r, apperrors.ErrValidation.WithMessage(strings.Join(v.Reasons, "; ")))
		return nil
	}

	now := w.now().UTC()
	r.doc = w.deps.Enricher.BuildDocument(env.Transaction, now)
	r.doc.UpdatedAt = now
	r.doc.EventTimestamp = env.Timestamp.Time
	if r.doc.EventTimestamp.IsZero() {
		r.doc.EventTimestamp = raw.Time
	}

	w.setState(StateBatching)
	w.acc.Add(r)
	w.inBatch[fp] = struct{}{}
	return nil
}

// flush writes the batch, resubmitting only failed records until they
// succeed or exhaust their retries.
func (w *PartitionWorker) flush(ctx context.Context) {
	age := w.acc.Age(w.now())
	pending := append(w.carry, w.acc.Drain()...)
	w.carry = nil
	for k := range w.inBatch {
		delete(w.inBatch, k)
	}
	if len(pending) == 0 {
		return
	}

	w.setState(StateFlushing)
	metrics.ObserveBatchSize(len(pending))
	w.log.DebugwCtx(ctx, "Flushing batch",
		"records", len(pending),
		"oldest_age", age,
	)
	start := time.Now()
	status := "ok"
	sched := retry.NewSchedule(w.cfg.Retry)

	for attempt := 1; len(pending) > 0; attempt++ {
		failed := w.writeOnce(ctx, pending, attempt)

		var retryable []*record
		for _, r := range failed {
			r.attempts++
			if r.attempts > w.cfg.MaxRetries {
				status = "partial"
				w.deadLetter(ctx, r, r.lastErr)
				continue
			}
			metrics.IncRetry(apperrors.Classify(r.lastErr))
			retryable = append(retryable, r)
		}
		if len(retryable) == 0 {
			break
		}

		w.log.WarnwCtx(ctx, "Retrying failed batch records",
			"failed", len(retryable),
			"attempt", attempt,
			"error", retryable[0].lastErr,
		)
		if sched.Wait(ctx) != nil {
			w.carry = retryable
			status = "interrupted"
			break
		}
		w.setState(StateFlushing)
		pending = retryable
	}

	metrics.ObserveFlushDuration(time.Since(start), status)
}

// writeOnce versions and indexes pending in order and returns the records
// that failed, still in order.
func (w *PartitionWorker) writeOnce(ctx context.Context, pending []*record, attempt int) (failed []*record) {
	ctx, span := tracing.StartFlushSpan(ctx, w.src.Partition(), len(pending), attempt)
	defer span.End()

	for _, r := range pending {
		r.failed = false
	}
	defer func() {
		if p := recover(); p != nil {
			err := apperrors.RecoverPanic(p)
			w.log.ErrorwCtx(ctx, "Panic recovered while writing batch", "error", err)
			failed = failed[:0]
			for _, r := range pending {
				if !r.done {
					r.fail(err)
					failed = append(failed, r)
				}
			}
		}
	}()

	indexed, skipped, stale := w.writePass(ctx, pending)

	// A derived version can lag the store when another instance owned the
	// partition. Re-read the store once unless a later event for the same
	// document has already been written in this pass.
	wrote := make(map[*record]bool, len(indexed))
	for _, r := range indexed {
		wrote[r] = true
	}
	pos := make(map[*record]int, len(pending))
	lastWritten := make(map[string]int)
	for i, r := range pending {
		pos[r] = i
		if wrote[r] {
			lastWritten[r.doc.ID] = i
		}
	}
	var again []*record
	for _, r := range stale {
		last, superseded := lastWritten[r.doc.ID]
		if r.env.Version > 0 || r.reversioned || (superseded && last > pos[r]) {
			skipped = append(skipped, r)
			continue
		}
		w.log.DebugwCtx(ctx, "Cached version behind store, re-reading",
			"transaction_id", r.doc.ID,
			"version", r.decision.Version,
		)
		w.deps.Versioner.Forget(r.doc.ID)
		r.decision = nil
		r.reversioned = true
		again = append(again, r)
	}
	if len(again) > 0 {
		i2, s2, st2 := w.writePass(ctx, again)
		indexed = append(indexed, i2...)
		skipped = append(skipped, s2...)
		skipped = append(skipped, st2...)
	}

	w.complete(ctx, indexed, skipped)
	metrics.SetVersionCacheSize(w.deps.Versioner.Len())

	for _, r := range pending {
		if r.failed {
			failed = append(failed, r)
		}
	}
	return failed
}

// writePass versions and indexes records once. Records rejected by the store
// as stale are returned separately from those skipped before writing.
func (w *PartitionWorker) writePass(ctx context.Context, pending []*record) (indexed, skipped, stale []*record) {
	var (
		items   []search.BulkItem
		writing []*record
	)

	for _, r := range pending {
		if r.decision == nil {
			d, err := w.deps.Versioner.VersionFor(ctx, r.doc.ID, r.env.EventType, r.doc.EventTimestamp, r.env.Version)
			if err != nil {
				r.fail(err)
				continue
			}
			r.decision = &d
		}
		if !r.decision.Apply {
			skipped = append(skipped, r)
			continue
		}
		r.doc.Version = r.decision.Version
		r.doc.Deleted = r.decision.Remove
		items = append(items, search.BulkItem{Document: r.doc})
		writing = append(writing, r)
	}

	if len(items) > 0 {
		results, err := w.deps.Search.BulkIndex(ctx, items)
		if err != nil {
			for _, r := range writing {
				r.fail(err)
			}
		} else {
			for i, res := range results {
				r := writing[i]
				switch res.Status {
				case search.ItemIndexed:
					indexed = append(indexed, r)
				case search.ItemStale:
					stale = append(stale, r)
				default:
					r.fail(apperrors.ErrTransientDependency.
						WithMessage(fmt.Sprintf("search store rejected %s: %s", r.doc.ID, res.Reason)).
						WithDetail("http_status", res.HTTPStatus))
				}
			}
		}
	}
	return indexed, skipped, stale
}

func (r *record) fail(err error) {
	r.failed = true
	r.lastErr = err
}

// complete audits, marks and resolves written records. Marking precedes the
// offset commit so a replay after the commit is suppressed.
func (w *PartitionWorker) complete(ctx context.Context, indexed, skipped []*record) {
	if len(indexed)+len(skipped) == 0 {
		return
	}

	fps := make([]string, 0, len(indexed)+len(skipped))
	for _, r := range indexed {
		metrics.IncIndexed(string(r.env.EventType))
		metrics.IncProcessed(constants.OutcomeIndexed)
		if w.deps.Audit != nil {
			w.deps.Audit.Enqueue(audit.Entry{Document: r.doc, EventType: r.env.EventType})
		}
		fps = append(fps, r.fingerprint)
	}
	for _, r := range skipped {
		metrics.IncProcessed(constants.OutcomeSkipped)
		w.log.DebugwCtx(ctx, "Stale event skipped",
			"transaction_id", r.doc.ID,
			"version", r.decision.Version,
			"offset", r.raw.Offset,
		)
		fps = append(fps, r.fingerprint)
	}

	// The tracker logs distributed failures itself; the local tier is always marked.
	_ = w.deps.Tracker.MarkProcessedMany(ctx, fps, w.cfg.ProcessedTTL)

	for _, r := range indexed {
		r.done = true
		w.offsets.resolve(r.raw.Offset)
	}
	for _, r := range skipped {
		r.done = true
		w.offsets.resolve(r.raw.Offset)
	}
}

// deadLetter resolves r once the dead-letter record is published. A publish
// failure withholds the offset and halts the worker until it rewinds.
func (w *PartitionWorker) deadLetter(ctx context.Context, r *record, cause error) {
	w.setState(StateDeadLettering)

	msg := deadletter.Message{
		Raw:         r.raw.Value,
		Fingerprint: r.fingerprint,
		Topic:       r.raw.Topic,
		Partition:   r.raw.Partition,
		Offset:      r.raw.Offset,
		FirstSeenAt: r.firstSeen,
		Attempts:    r.attempts,
	}
	if r.fingerprint != "" {
		env := r.env
		msg.Envelope = &env
	}

	if err := w.deps.DeadLetter.Send(ctx, msg, cause); err != nil {
		w.halted = true
		w.log.ErrorwCtx(ctx, "Withholding offset, dead-letter publish failed",
			"error", err,
			"offset", r.raw.Offset,
		)
		return
	}
	metrics.IncProcessed(constants.OutcomeDeadLettered)
	w.offsets.resolve(r.raw.Offset)
}

func (w *PartitionWorker) maybeCommit(ctx context.Context, force bool) {
	if !force && (w.acc.Len() > 0 || w.offsets.uncommitted < w.cfg.BatchSize) {
		return
	}
	w.commit(ctx)
}

func (w *PartitionWorker) commit(ctx context.Context) {
	next, ok := w.offsets.pending()
	if !ok {
		return
	}
	w.setState(StateCommitting)
	if err := w.src.Commit(ctx, next); err != nil {
		w.log.WarnwCtx(ctx, "Failed to commit offset", "error", err, "offset", next)
		return
	}
	w.offsets.markCommitted(next)
	metrics.IncOffsetCommitted(w.src.Topic(), w.src.Partition())
}

// rewind re-reads the partition from the first unresolved offset.
func (w *PartitionWorker) rewind(ctx context.Context) {
	first, ok := w.offsets.firstUnresolved()
	w.halted = false
	if !ok {
		return
	}

	w.acc.Drain()
	w.carry = nil
	for k := range w.inBatch {
		delete(w.inBatch, k)
	}
	w.offsets.reset()

	w.log.WarnwCtx(ctx, "Rewinding partition to withheld offset", "offset", first)
	for sleep(ctx, w.cfg.RewindDelay) {
		err := w.src.Seek(first)
		if err == nil {
			return
		}
		w.log.ErrorwCtx(ctx, "Failed to rewind partition", "error", err, "offset", first)
	}
}

func (w *PartitionWorker) drain(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ShutdownTimeout)
	defer cancel()

	w.flush(dctx)
	w.commit(dctx)

	w.log.InfowCtx(dctx, "Partition worker stopped",
		"unresolved", w.offsets.inFlight(),
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
