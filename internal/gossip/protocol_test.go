package gossip

import (
	"net"
	"testing"
	"time"

	"github.com/mini-cassandra/mini-cassandra/internal/internode"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestProtocolExchangeConvergesMembership(t *testing.T) {
	addrA := freeAddr(t)
	addrB := freeAddr(t)

	linkA := internode.New(addrA)
	linkB := internode.New(addrB)

	memA := NewMembership(addrA, 1)
	memB := NewMembership(addrB, 1)

	noopCallback := func(addr string, oldStatus, newStatus types.NodeStatus) {}
	detA := NewFailureDetector(memA, time.Minute, time.Minute, noopCallback)
	detB := NewFailureDetector(memB, time.Minute, time.Minute, noopCallback)

	protoA := NewProtocol(addrA, memA, detA, linkA, 20*time.Millisecond)
	protoB := NewProtocol(addrB, memB, detB, linkB, 20*time.Millisecond)

	protoA.AddSeed(addrB)
	protoB.AddSeed(addrA)

	if err := linkA.Start(); err != nil {
		t.Fatalf("linkA.Start failed: %v", err)
	}
	defer linkA.Stop()
	if err := linkB.Start(); err != nil {
		t.Fatalf("linkB.Start failed: %v", err)
	}
	defer linkB.Stop()

	protoA.Start()
	defer protoA.Stop()
	protoB.Start()
	defer protoB.Stop()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		stA, okA := memA.Get(addrB)
		stB, okB := memB.Get(addrA)
		if okA && okB && stA.Status == types.StatusNormal && stB.Status == types.StatusNormal {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("membership did not converge: A knows B=%v(%v), B knows A=%v(%v)", okA, stA, okB, stB)
		case <-tick.C:
		}
	}
}

func TestApplyStatesFiresEndpointChange(t *testing.T) {
	selfAddr := "127.0.0.1:9999"
	mem := NewMembership(selfAddr, 1)
	link := internode.New(selfAddr)
	proto := NewProtocol(selfAddr, mem, nil, link, time.Second)

	type change struct {
		addr     string
		old, new types.NodeStatus
	}
	var changes []change
	proto.OnEndpointChange(func(addr string, oldStatus, newStatus types.NodeStatus) {
		changes = append(changes, change{addr, oldStatus, newStatus})
	})

	// a newly met peer fires the callback
	proto.applyStates(map[string]EndpointState{
		"10.0.0.2:9999": {Generation: 5, Version: 1, Status: types.StatusNormal},
	})
	if len(changes) != 1 || changes[0].addr != "10.0.0.2:9999" || changes[0].new != types.StatusNormal {
		t.Fatalf("unexpected changes after first merge: %v", changes)
	}

	// a stale state for the same peer is ignored
	proto.applyStates(map[string]EndpointState{
		"10.0.0.2:9999": {Generation: 4, Version: 9, Status: types.StatusDead},
	})
	if len(changes) != 1 {
		t.Fatalf("stale merge fired a change: %v", changes)
	}

	// a newer state with a status transition fires again
	proto.applyStates(map[string]EndpointState{
		"10.0.0.2:9999": {Generation: 5, Version: 2, Status: types.StatusLeaving},
	})
	if len(changes) != 2 || changes[1].old != types.StatusNormal || changes[1].new != types.StatusLeaving {
		t.Fatalf("unexpected changes after status transition: %v", changes)
	}

	// a version bump with the same status merges silently
	proto.applyStates(map[string]EndpointState{
		"10.0.0.2:9999": {Generation: 5, Version: 3, Status: types.StatusLeaving},
	})
	if len(changes) != 2 {
		t.Fatalf("same-status merge fired a change: %v", changes)
	}

	// states about self are never applied from a peer
	proto.applyStates(map[string]EndpointState{
		selfAddr: {Generation: 99, Version: 99, Status: types.StatusDead},
	})
	if st := mem.Self(); st.Status != types.StatusNormal {
		t.Errorf("peer overwrote self state: %+v", st)
	}
}
