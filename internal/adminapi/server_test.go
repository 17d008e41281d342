package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mini-cassandra/mini-cassandra/internal/config"
	"github.com/mini-cassandra/mini-cassandra/internal/coordinator"
	"github.com/mini-cassandra/mini-cassandra/internal/gossip"
	"github.com/mini-cassandra/mini-cassandra/internal/internode"
	"github.com/mini-cassandra/mini-cassandra/internal/partitioner"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
	"github.com/mini-cassandra/mini-cassandra/internal/storage"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.NodeID = "admin-test"
	cfg.DataDir = t.TempDir()

	engine, err := storage.NewFileEngine(cfg.DataDir)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	ring := partitioner.New()
	if err := ring.AddNode(cfg.InternodeAddress()); err != nil {
		t.Fatalf("adding self: %v", err)
	}
	membership := gossip.NewMembership(cfg.InternodeAddress(), 1)
	link := internode.New(cfg.InternodeAddress())
	coord := coordinator.New(cfg, schema.NewCatalog(), ring, engine, link, membership)

	session := &coordinator.Session{}
	if _, err := coord.Execute(session, "CREATE KEYSPACE world WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}", types.ConsistencyOne); err != nil {
		t.Fatalf("creating keyspace: %v", err)
	}
	if _, err := coord.Execute(session, "CREATE TABLE world.users (id int, name text, PRIMARY KEY (id))", types.ConsistencyOne); err != nil {
		t.Fatalf("creating table: %v", err)
	}

	return NewServer(cfg, coord, ring, membership)
}

func get(t *testing.T, s *Server, path string) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s returned %d: %s", path, rec.Code, rec.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("GET %s returned invalid JSON: %v", path, err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	out := get(t, s, "/health")
	if out["status"] != "healthy" || out["node"] != "admin-test" {
		t.Errorf("unexpected health body: %v", out)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	out := get(t, s, "/admin/status")
	if out["node_id"] != "admin-test" {
		t.Errorf("node_id = %v", out["node_id"])
	}
	if out["ring_size"].(float64) != 1 {
		t.Errorf("ring_size = %v", out["ring_size"])
	}
	if out["keyspaces"].(float64) != 1 {
		t.Errorf("keyspaces = %v", out["keyspaces"])
	}
	if out["host_id"] == "" {
		t.Error("host_id missing")
	}
}

func TestRingEndpoint(t *testing.T) {
	s := newTestServer(t)
	out := get(t, s, "/admin/ring")
	if out["count"].(float64) != 1 {
		t.Errorf("token count = %v", out["count"])
	}
}

func TestSchemaEndpoint(t *testing.T) {
	s := newTestServer(t)
	out := get(t, s, "/admin/schema")
	keyspaces := out["keyspaces"].([]interface{})
	if len(keyspaces) != 1 {
		t.Fatalf("keyspace count = %d", len(keyspaces))
	}
	ks := keyspaces[0].(map[string]interface{})
	if ks["name"] != "world" || ks["replication_class"] != "SimpleStrategy" {
		t.Errorf("unexpected keyspace body: %v", ks)
	}
	tables := ks["tables"].([]interface{})
	if len(tables) != 1 || tables[0].(map[string]interface{})["name"] != "users" {
		t.Errorf("unexpected tables: %v", tables)
	}
}

func TestPeersEndpoint(t *testing.T) {
	s := newTestServer(t)
	out := get(t, s, "/admin/peers")
	peers := out["peers"].([]interface{})
	if len(peers) != 1 {
		t.Fatalf("peer count = %d", len(peers))
	}
	self := peers[0].(map[string]interface{})
	if self["status"] != "normal" {
		t.Errorf("self status = %v", self["status"])
	}
}
