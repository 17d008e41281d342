package coordinator

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/mini-cassandra/mini-cassandra/internal/config"
	"github.com/mini-cassandra/mini-cassandra/internal/gossip"
	"github.com/mini-cassandra/mini-cassandra/internal/internode"
	"github.com/mini-cassandra/mini-cassandra/internal/partitioner"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
	"github.com/mini-cassandra/mini-cassandra/internal/storage"
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

// newClusterOfThree starts three coordinators with live internode links,
// each with a full ring view and every peer marked Normal, as if gossip had
// already converged.
func newClusterOfThree(t *testing.T) []*Coordinator {
	t.Helper()

	addrs := []string{freeAddr(t), freeAddr(t), freeAddr(t)}
	coords := make([]*Coordinator, len(addrs))

	for i, addr := range addrs {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("splitting %s: %v", addr, err)
		}
		port, _ := strconv.Atoi(portStr)

		cfg := config.DefaultConfig()
		cfg.NodeID = "node-" + strconv.Itoa(i)
		cfg.Address = host
		cfg.InternodePort = port
		cfg.DataDir = t.TempDir()
		cfg.RequestTimeout = 2 * time.Second

		engine, err := storage.NewFileEngine(cfg.DataDir)
		if err != nil {
			t.Fatalf("creating engine: %v", err)
		}
		t.Cleanup(func() { engine.Close() })

		ring := partitioner.New()
		membership := gossip.NewMembership(addr, 1)
		for _, other := range addrs {
			if err := ring.AddNode(other); err != nil {
				t.Fatalf("adding %s to ring: %v", other, err)
			}
			if other != addr {
				membership.Merge(other, gossip.EndpointState{Generation: 1, Version: 1, Status: types.StatusNormal})
			}
		}

		link := internode.New(addr)
		coords[i] = New(cfg, schema.NewCatalog(), ring, engine, link, membership)
		if err := link.Start(); err != nil {
			t.Fatalf("starting link %s: %v", addr, err)
		}
		t.Cleanup(link.Stop)
	}
	return coords
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-tick.C:
		}
	}
}

func TestClusterDDLReachesEveryNode(t *testing.T) {
	coords := newClusterOfThree(t)
	session := &Session{}

	res := execute(t, coords[0], session, "CREATE KEYSPACE world WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 3}")
	if res.Change == nil || res.Change.Type != ChangeCreated {
		t.Fatalf("unexpected DDL result: %+v", res)
	}

	waitFor(t, "keyspace on every node", func() bool {
		for _, c := range coords {
			if _, err := c.catalog.Keyspace("world"); err != nil {
				return false
			}
		}
		return true
	})

	execute(t, coords[0], session, "CREATE TABLE world.users (id int, name text, PRIMARY KEY (id))")
	waitFor(t, "table on every node", func() bool {
		for _, c := range coords {
			ks, err := c.catalog.Keyspace("world")
			if err != nil {
				return false
			}
			if _, err := ks.Table("users"); err != nil {
				return false
			}
		}
		return true
	})
}

func TestClusterQuorumWriteAndRead(t *testing.T) {
	coords := newClusterOfThree(t)
	session := &Session{}

	execute(t, coords[0], session, "CREATE KEYSPACE world WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 3}")
	execute(t, coords[0], session, "CREATE TABLE world.users (id int, name text, PRIMARY KEY (id))")
	waitFor(t, "schema on every node", func() bool {
		for _, c := range coords {
			ks, err := c.catalog.Keyspace("world")
			if err != nil {
				return false
			}
			if _, err := ks.Table("users"); err != nil {
				return false
			}
		}
		return true
	})

	res, err := coords[0].Execute(session, "INSERT INTO world.users (id, name) VALUES ('42', 'ada')", types.ConsistencyQuorum)
	if err != nil {
		t.Fatalf("quorum write failed: %v", err)
	}
	if res.Kind != ResultVoid {
		t.Fatalf("write result = %+v", res)
	}

	// with RF equal to the cluster size every node holds a copy, so a read
	// coordinated by any node must find the row
	for i, c := range coords {
		res, err := c.Execute(&Session{}, "SELECT name FROM world.users WHERE id = '42'", types.ConsistencyOne)
		if err != nil {
			t.Fatalf("read via node %d failed: %v", i, err)
		}
		if len(res.Rows) != 1 || res.Rows[0]["name"] != "ada" {
			t.Fatalf("read via node %d returned %v", i, res.Rows)
		}
	}

	// a write at ALL must also succeed while every replica is up
	if _, err := coords[1].Execute(session, "INSERT INTO world.users (id, name) VALUES ('43', 'bob')", types.ConsistencyAll); err != nil {
		t.Fatalf("ALL write with all replicas up failed: %v", err)
	}
}

func TestClusterOwnerAgreement(t *testing.T) {
	coords := newClusterOfThree(t)

	// every node must compute the same owner for the same key
	key := []byte("user_42")
	owner, err := coords[0].ring.OwnerOf(key)
	if err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	for i, c := range coords[1:] {
		got, err := c.ring.OwnerOf(key)
		if err != nil {
			t.Fatalf("owner lookup on node %d: %v", i+1, err)
		}
		if got != owner {
			t.Errorf("node %d disagrees on owner: %s vs %s", i+1, got, owner)
		}
	}

	// removing the owner moves ownership to the ring successor
	successors, err := coords[0].ring.Successors(owner, 1)
	if err != nil {
		t.Fatalf("successors: %v", err)
	}
	if err := coords[0].ring.RemoveNode(owner); err != nil {
		t.Fatalf("removing owner: %v", err)
	}
	newOwner, err := coords[0].ring.OwnerOf(key)
	if err != nil {
		t.Fatalf("owner lookup after removal: %v", err)
	}
	if newOwner != successors[0] {
		t.Errorf("ownership moved to %s, want successor %s", newOwner, successors[0])
	}
}
