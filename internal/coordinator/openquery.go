package coordinator

import (
	"sync"
	"time"

	"github.com/mini-cassandra/mini-cassandra/internal/storage"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// queryOutcome is what an open query resolves to: success once enough acks
// arrived, or failure once success became unreachable.
type queryOutcome struct {
	ok       bool
	received int // successful acks at resolution time
	columns  []string
	rows     []storage.Row
}

// openQuery tracks one in-flight fan-out: how many replica acknowledgements
// are still needed, how many can still arrive, and where to deliver the
// final outcome. The reply channel is buffered so the ack that resolves the
// query never blocks on a waiter that has already timed out.
type openQuery struct {
	id          uint32
	keyspace    string
	consistency types.ConsistencyLevel
	needed      int
	total       int

	receivedOK  int
	receivedErr int
	columns     []string
	rows        []storage.Row

	startedAt time.Time
	replyCh   chan queryOutcome
	resolved  bool
}

// openQueryTable owns every in-flight query handle, keyed by the node-local
// monotonically increasing open-query id. Late acks for ids that already
// resolved (or timed out and were cleared) miss the lookup and are dropped,
// which is what makes duplicate internode delivery harmless for queries.
type openQueryTable struct {
	mu     sync.Mutex
	nextID uint32
	open   map[uint32]*openQuery
}

func newOpenQueryTable() *openQueryTable {
	return &openQueryTable{open: make(map[uint32]*openQuery)}
}

// create allocates a handle expecting needed successful acks out of total
// dispatched targets.
func (t *openQueryTable) create(keyspace string, consistency types.ConsistencyLevel, needed, total int) *openQuery {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	q := &openQuery{
		id:          t.nextID,
		keyspace:    keyspace,
		consistency: consistency,
		needed:      needed,
		total:       total,
		startedAt:   time.Now(),
		replyCh:     make(chan queryOutcome, 1),
	}
	t.open[q.id] = q
	return q
}

// recordAck counts one replica's answer against the handle. The outcome is
// emitted exactly once: on the ack that reaches the threshold, or on the ack
// that makes the threshold unreachable. rows/columns are retained from the
// most recent successful ack that carried them (reads fan out to one target,
// so there is no cross-replica merge to do).
func (t *openQueryTable) recordAck(id uint32, ok bool, columns []string, rows []storage.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, exists := t.open[id]
	if !exists || q.resolved {
		return
	}

	if ok {
		q.receivedOK++
		if columns != nil {
			q.columns = columns
			q.rows = rows
		}
	} else {
		q.receivedErr++
	}

	if q.receivedOK >= q.needed {
		q.resolved = true
		q.replyCh <- queryOutcome{ok: true, received: q.receivedOK, columns: q.columns, rows: q.rows}
		delete(t.open, id)
		return
	}
	if q.total-q.receivedErr < q.needed {
		q.resolved = true
		q.replyCh <- queryOutcome{ok: false, received: q.receivedOK}
		delete(t.open, id)
	}
}

// progress reports how many successful acks a still-open handle has, for
// timeout error reporting.
func (t *openQueryTable) progress(id uint32) (receivedOK int, open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, exists := t.open[id]
	if !exists {
		return 0, false
	}
	return q.receivedOK, true
}

// clear drops a handle whose waiter has given up, so late acks are discarded
// by id lookup miss.
func (t *openQueryTable) clear(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, id)
}

// size returns the number of currently open handles, for the admin plane.
func (t *openQueryTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
