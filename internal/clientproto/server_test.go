package clientproto

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"

	"github.com/mini-cassandra/mini-cassandra/internal/config"
	"github.com/mini-cassandra/mini-cassandra/internal/coordinator"
	"github.com/mini-cassandra/mini-cassandra/internal/cql"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
	"github.com/mini-cassandra/mini-cassandra/internal/storage"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// stubExecutor stands in for the coordinator: it records what it was asked
// and answers with a canned result or error.
type stubExecutor struct {
	catalog *schema.Catalog
	res     *coordinator.Result
	err     error

	gotCQL         string
	gotConsistency types.ConsistencyLevel
}

func (s *stubExecutor) Execute(session *coordinator.Session, cqlText string, consistency types.ConsistencyLevel) (*coordinator.Result, error) {
	s.gotCQL = cqlText
	s.gotConsistency = consistency
	return s.res, s.err
}

func (s *stubExecutor) Catalog() *schema.Catalog { return s.catalog }

func usersCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	catalog := schema.NewCatalog()
	ks, err := catalog.CreateKeyspace("world", 1, false)
	if err != nil {
		t.Fatalf("creating keyspace: %v", err)
	}
	err = ks.CreateTable(&schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Type: types.TypeInt, IsPartitionKey: true},
			{Name: "name", Type: types.TypeText, AllowsNull: true},
		},
		PartitionKeys: []string{"id"},
	}, false)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	return catalog
}

// dialStub wires a server over an in-memory pipe and returns the client end
// plus the codec to speak through it.
func dialStub(t *testing.T, exec *stubExecutor) (net.Conn, frame.Codec) {
	t.Helper()
	cfg := config.DefaultConfig()
	server := NewServer(cfg, exec)

	clientSide, serverSide := net.Pipe()
	go server.HandleConn(serverSide)
	t.Cleanup(func() { clientSide.Close() })

	return clientSide, frame.NewCodec()
}

func roundTrip(t *testing.T, conn net.Conn, codec frame.Codec, msg message.Message) message.Message {
	t.Helper()
	if err := codec.EncodeFrame(frame.NewFrame(primitive.ProtocolVersion4, 1, msg), conn); err != nil {
		t.Fatalf("encoding %T: %v", msg, err)
	}
	reply, err := codec.DecodeFrame(conn)
	if err != nil {
		t.Fatalf("decoding reply to %T: %v", msg, err)
	}
	return reply.Body.Message
}

func TestHandshakeAndQuery(t *testing.T) {
	exec := &stubExecutor{
		catalog: usersCatalog(t),
		res: &coordinator.Result{
			Kind:     coordinator.ResultRows,
			Keyspace: "world",
			Table:    "users",
			Columns:  []string{"id", "name"},
			Rows:     []storage.Row{{"id": "1", "name": "alice"}, {"id": "2"}},
		},
	}
	conn, codec := dialStub(t, exec)

	if _, ok := roundTrip(t, conn, codec, &message.Options{}).(*message.Supported); !ok {
		t.Fatal("OPTIONS did not produce SUPPORTED")
	}
	if _, ok := roundTrip(t, conn, codec, &message.Startup{Options: map[string]string{"CQL_VERSION": "3.0.0"}}).(*message.Ready); !ok {
		t.Fatal("STARTUP did not produce READY")
	}

	reply := roundTrip(t, conn, codec, &message.Query{
		Query:   "SELECT id, name FROM world.users WHERE id = '1'",
		Options: &message.QueryOptions{Consistency: primitive.ConsistencyLevelQuorum},
	})
	rows, ok := reply.(*message.RowsResult)
	if !ok {
		t.Fatalf("QUERY did not produce a rows result: %T", reply)
	}

	if exec.gotConsistency != types.ConsistencyQuorum {
		t.Errorf("consistency not mapped: got %s", exec.gotConsistency)
	}
	if rows.Metadata.ColumnCount != 2 {
		t.Errorf("column count = %d, want 2", rows.Metadata.ColumnCount)
	}
	if len(rows.Data) != 2 {
		t.Fatalf("row count = %d, want 2", len(rows.Data))
	}
	// id is declared int: 1 encodes as a big-endian int32
	if !bytes.Equal(rows.Data[0][0], []byte{0, 0, 0, 1}) {
		t.Errorf("int column encoded as %v", rows.Data[0][0])
	}
	if string(rows.Data[0][1]) != "alice" {
		t.Errorf("text column encoded as %q", rows.Data[0][1])
	}
	// row 2 has no name: NULL on the wire
	if rows.Data[1][1] != nil {
		t.Errorf("absent column should be null, got %v", rows.Data[1][1])
	}
}

func TestQueryBeforeStartup(t *testing.T) {
	exec := &stubExecutor{catalog: schema.NewCatalog(), res: &coordinator.Result{Kind: coordinator.ResultVoid}}
	conn, codec := dialStub(t, exec)

	reply := roundTrip(t, conn, codec, &message.Query{Query: "SELECT 1", Options: &message.QueryOptions{Consistency: primitive.ConsistencyLevelOne}})
	if _, ok := reply.(*message.ProtocolError); !ok {
		t.Fatalf("QUERY before STARTUP should be a protocol error, got %T", reply)
	}
}

func TestSchemaChangeReply(t *testing.T) {
	exec := &stubExecutor{
		catalog: schema.NewCatalog(),
		res: &coordinator.Result{
			Kind:   coordinator.ResultSchemaChange,
			Change: &coordinator.SchemaChange{Type: coordinator.ChangeCreated, Target: coordinator.TargetKeyspace, Keyspace: "world"},
		},
	}
	conn, codec := dialStub(t, exec)

	roundTrip(t, conn, codec, &message.Startup{Options: map[string]string{"CQL_VERSION": "3.0.0"}})
	reply := roundTrip(t, conn, codec, &message.Query{Query: "CREATE KEYSPACE world", Options: &message.QueryOptions{Consistency: primitive.ConsistencyLevelOne}})

	change, ok := reply.(*message.SchemaChangeResult)
	if !ok {
		t.Fatalf("expected schema change result, got %T", reply)
	}
	if change.ChangeType != primitive.SchemaChangeTypeCreated || change.Target != primitive.SchemaChangeTargetKeyspace || change.Keyspace != "world" {
		t.Errorf("unexpected schema change body: %+v", change)
	}
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want message.Message
	}{
		{"syntax", fmt.Errorf("%w: bad token", cql.ErrSyntax), &message.SyntaxError{}},
		{"keyspace exists", schema.ErrKeyspaceExists, &message.AlreadyExists{}},
		{"table exists", schema.ErrTableExists, &message.AlreadyExists{}},
		{"keyspace missing", schema.ErrKeyspaceNotFound, &message.Invalid{}},
		{"validation", coordinator.ErrInvalid, &message.Invalid{}},
		{"no keyspace selected", coordinator.ErrNoKeyspace, &message.Invalid{}},
		{"unavailable", &coordinator.UnavailableError{Consistency: types.ConsistencyQuorum, Required: 2, Alive: 1}, &message.Unavailable{}},
		{"write timeout", &coordinator.TimeoutError{Write: true, Consistency: types.ConsistencyAll, Received: 2, Required: 3}, &message.WriteTimeout{}},
		{"read timeout", &coordinator.TimeoutError{Write: false, Consistency: types.ConsistencyOne, Required: 1}, &message.ReadTimeout{}},
		{"storage io", storage.ErrIO, &message.ServerError{}},
		{"unknown", errors.New("boom"), &message.ServerError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorMessage(tt.err, types.ConsistencyOne)
			if fmt.Sprintf("%T", got) != fmt.Sprintf("%T", tt.want) {
				t.Errorf("errorMessage(%v) = %T, want %T", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorTranslationCarriesCounts(t *testing.T) {
	got := errorMessage(&coordinator.UnavailableError{Consistency: types.ConsistencyQuorum, Required: 2, Alive: 1}, types.ConsistencyOne)
	unavailable, ok := got.(*message.Unavailable)
	if !ok {
		t.Fatalf("expected Unavailable, got %T", got)
	}
	if unavailable.Required != 2 || unavailable.Alive != 1 || unavailable.Consistency != primitive.ConsistencyLevelQuorum {
		t.Errorf("unexpected body: %+v", unavailable)
	}

	got = errorMessage(&coordinator.TimeoutError{Write: true, Consistency: types.ConsistencyAll, Received: 2, Required: 3}, types.ConsistencyOne)
	timeout, ok := got.(*message.WriteTimeout)
	if !ok {
		t.Fatalf("expected WriteTimeout, got %T", got)
	}
	if timeout.Received != 2 || timeout.BlockFor != 3 || timeout.Consistency != primitive.ConsistencyLevelAll {
		t.Errorf("unexpected body: %+v", timeout)
	}
}

func TestEncodeValue(t *testing.T) {
	if got := encodeValue(types.TypeInt, "42"); !bytes.Equal(got, []byte{0, 0, 0, 42}) {
		t.Errorf("int: %v", got)
	}
	if got := encodeValue(types.TypeBoolean, "true"); !bytes.Equal(got, []byte{1}) {
		t.Errorf("boolean: %v", got)
	}
	if got := encodeValue(types.TypeTimestamp, "256"); !bytes.Equal(got, []byte{0, 0, 0, 0, 0, 0, 1, 0}) {
		t.Errorf("timestamp: %v", got)
	}
	if got := encodeValue(types.TypeUuid, "c0d1d21e-bb01-4196-86db-bc317bc1796a"); len(got) != 16 {
		t.Errorf("uuid should be 16 bytes, got %d", len(got))
	}
	if got := encodeValue(types.TypeText, "hello"); string(got) != "hello" {
		t.Errorf("text: %q", got)
	}
	// a value that does not parse as its declared type falls back to text
	if got := encodeValue(types.TypeInt, "not-a-number"); string(got) != "not-a-number" {
		t.Errorf("fallback: %q", got)
	}
}

func TestConsistencyMapping(t *testing.T) {
	tests := []struct {
		wire primitive.ConsistencyLevel
		want types.ConsistencyLevel
	}{
		{primitive.ConsistencyLevelOne, types.ConsistencyOne},
		{primitive.ConsistencyLevelQuorum, types.ConsistencyQuorum},
		{primitive.ConsistencyLevelLocalQuorum, types.ConsistencyQuorum},
		{primitive.ConsistencyLevelAll, types.ConsistencyAll},
	}
	for _, tt := range tests {
		if got := consistencyFromWire(tt.wire); got != tt.want {
			t.Errorf("consistencyFromWire(%v) = %s, want %s", tt.wire, got, tt.want)
		}
	}
}
