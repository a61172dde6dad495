package export

import (
	"errors"

	"github.com/agentic-research/figport/internal/graph"
)

// ErrBatchInFlight is returned when a batch is dispatched before the
// previous one resolved.
var ErrBatchInFlight = errors.New("batch already in flight")

// Batch is one get_nodes_info request.
type Batch struct {
	// Seq is 1-based and increases across the whole session.
	Seq           int
	CorrelationID string
	IDs           []string
}

// BatchDispatcher drains a FIFO of node ids in fixed-size batches with at
// most one batch in flight. An id is marked processed when its batch is
// dispatched, so it is never requested twice in a session.
type BatchDispatcher struct {
	size      int
	queue     []string
	queued    map[string]struct{}
	processed *graph.IDSet
	inFlight  *Batch
	seq       int
}

// NewBatchDispatcher returns a dispatcher sending up to size ids per batch.
func NewBatchDispatcher(size int) *BatchDispatcher {
	if size < 1 {
		size = 1
	}
	return &BatchDispatcher{
		size:      size,
		queued:    make(map[string]struct{}),
		processed: graph.NewIDSet(),
	}
}

// Enqueue appends ids that are neither processed nor already queued and
// returns how many were added.
func (d *BatchDispatcher) Enqueue(ids []string) int {
	n := 0
	for _, id := range ids {
		if id == "" || d.processed.Contains(id) {
			continue
		}
		if _, ok := d.queued[id]; ok {
			continue
		}
		d.queued[id] = struct{}{}
		d.queue = append(d.queue, id)
		n++
	}
	return n
}

// Pending returns the number of queued ids.
func (d *BatchDispatcher) Pending() int { return len(d.queue) }

// PendingBatches returns how many batches the current queue needs.
func (d *BatchDispatcher) PendingBatches() int {
	return (len(d.queue) + d.size - 1) / d.size
}

// DispatchNext pops up to size ids, marks them processed, and hands the
// batch to send. It returns false with no error when the queue is empty.
func (d *BatchDispatcher) DispatchNext(correlationID string, send func(Batch) error) (Batch, bool, error) {
	if d.inFlight != nil {
		return Batch{}, false, ErrBatchInFlight
	}
	if len(d.queue) == 0 {
		return Batch{}, false, nil
	}
	n := min(d.size, len(d.queue))
	ids := append([]string(nil), d.queue[:n]...)
	d.queue = d.queue[n:]
	for _, id := range ids {
		delete(d.queued, id)
		d.processed.Add(id)
	}
	d.seq++
	b := Batch{Seq: d.seq, CorrelationID: correlationID, IDs: ids}
	d.inFlight = &b
	if err := send(b); err != nil {
		return b, true, err
	}
	return b, true, nil
}

// Resolve clears the in-flight batch when seq matches it.
func (d *BatchDispatcher) Resolve(seq int) bool {
	if d.inFlight == nil || d.inFlight.Seq != seq {
		return false
	}
	d.inFlight = nil
	return true
}

// InFlight returns the outstanding batch, if any.
func (d *BatchDispatcher) InFlight() (Batch, bool) {
	if d.inFlight == nil {
		return Batch{}, false
	}
	return *d.inFlight, true
}

// Drop forgets the in-flight batch without resolving it.
func (d *BatchDispatcher) Drop() { d.inFlight = nil }

// Dispatched returns the number of batches sent so far.
func (d *BatchDispatcher) Dispatched() int { return d.seq }

// Processed returns the set of ids already dispatched.
func (d *BatchDispatcher) Processed() *graph.IDSet { return d.processed }
