package pipeline

// offsetTracker finds the highest offset below which every record of the
// partition is resolved. Offsets must be tracked in increasing order.
type offsetTracker struct {
	inflight []int64
	resolved map[int64]bool
	// next is the commit position: the first offset not yet known resolved.
	next      int64
	committed int64
	// uncommitted counts offsets passed by next since the last commit.
	uncommitted int
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{resolved: make(map[int64]bool), next: -1, committed: -1}
}

func (t *offsetTracker) track(offset int64) {
	t.inflight = append(t.inflight, offset)
}

func (t *offsetTracker) resolve(offset int64) {
	t.resolved[offset] = true
	for len(t.inflight) > 0 && t.resolved[t.inflight[0]] {
		head := t.inflight[0]
		delete(t.resolved, head)
		t.inflight = t.inflight[1:]
		t.next = head + 1
		t.uncommitted++
	}
}

// pending reports the commit position if it moved since the last commit.
func (t *offsetTracker) pending() (int64, bool) {
	if t.next < 0 || t.next == t.committed {
		return 0, false
	}
	return t.next, true
}

func (t *offsetTracker) markCommitted(next int64) {
	t.committed = next
	t.uncommitted = 0
}

func (t *offsetTracker) firstUnresolved() (int64, bool) {
	if len(t.inflight) == 0 {
		return 0, false
	}
	return t.inflight[0], true
}

func (t *offsetTracker) inFlight() int {
	return len(t.inflight)
}

// reset forgets every unresolved offset, keeping the commit position.
func (t *offsetTracker) reset() {
	t.inflight = nil
	t.resolved = make(map[int64]bool)
}
