package coordinator

import (
	"testing"

	"github.com/mini-cassandra/mini-cassandra/internal/storage"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

func TestOpenQueryReachesThreshold(t *testing.T) {
	table := newOpenQueryTable()
	q := table.create("world", types.ConsistencyQuorum, 2, 3)

	table.recordAck(q.id, true, nil, nil)
	table.recordAck(q.id, false, nil, nil)

	select {
	case <-q.replyCh:
		t.Fatal("outcome emitted before threshold reached")
	default:
	}

	table.recordAck(q.id, true, nil, nil)

	outcome := <-q.replyCh
	if !outcome.ok {
		t.Errorf("expected success, got failure")
	}
	if outcome.received != 2 {
		t.Errorf("expected 2 acks at resolution, got %d", outcome.received)
	}
}

func TestOpenQueryUnreachableThreshold(t *testing.T) {
	table := newOpenQueryTable()
	q := table.create("world", types.ConsistencyAll, 3, 3)

	table.recordAck(q.id, true, nil, nil)
	// one error at ALL means success can no longer be reached
	table.recordAck(q.id, false, nil, nil)

	outcome := <-q.replyCh
	if outcome.ok {
		t.Error("expected failure when threshold became unreachable")
	}
	if outcome.received != 1 {
		t.Errorf("expected 1 ack at resolution, got %d", outcome.received)
	}
}

func TestOpenQueryEmitsExactlyOnce(t *testing.T) {
	table := newOpenQueryTable()
	q := table.create("world", types.ConsistencyOne, 1, 3)

	table.recordAck(q.id, true, nil, nil)
	table.recordAck(q.id, true, nil, nil)
	table.recordAck(q.id, true, nil, nil)

	<-q.replyCh
	select {
	case <-q.replyCh:
		t.Fatal("outcome emitted more than once")
	default:
	}
}

func TestOpenQueryLateAckDropped(t *testing.T) {
	table := newOpenQueryTable()
	q := table.create("world", types.ConsistencyOne, 1, 1)

	table.clear(q.id)
	// the waiter has given up; a late ack must be silently discarded
	table.recordAck(q.id, true, nil, nil)

	select {
	case <-q.replyCh:
		t.Fatal("late ack resolved a cleared handle")
	default:
	}
	if table.size() != 0 {
		t.Errorf("expected empty table, got %d handles", table.size())
	}
}

func TestOpenQueryRetainsReadPayload(t *testing.T) {
	table := newOpenQueryTable()
	q := table.create("world", types.ConsistencyOne, 1, 1)

	rows := []storage.Row{{"airport": "AEP"}}
	table.recordAck(q.id, true, []string{"airport"}, rows)

	outcome := <-q.replyCh
	if len(outcome.rows) != 1 || outcome.rows[0]["airport"] != "AEP" {
		t.Errorf("read payload not carried through: %v", outcome.rows)
	}
	if len(outcome.columns) != 1 || outcome.columns[0] != "airport" {
		t.Errorf("columns not carried through: %v", outcome.columns)
	}
}

func TestOpenQueryIDsIncrease(t *testing.T) {
	table := newOpenQueryTable()
	a := table.create("world", types.ConsistencyOne, 1, 1)
	b := table.create("world", types.ConsistencyOne, 1, 1)
	if b.id <= a.id {
		t.Errorf("ids must be monotonically increasing, got %d then %d", a.id, b.id)
	}
}
