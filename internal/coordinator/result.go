package coordinator

import "github.com/mini-cassandra/mini-cassandra/internal/storage"

// ResultKind mirrors the client protocol's result codes without depending on
// the wire library: the clientproto package translates at the boundary.
type ResultKind int

const (
	ResultVoid ResultKind = iota + 1
	ResultRows
	ResultSetKeyspace
	ResultSchemaChange
)

// SchemaChangeType is what happened to the schema object.
type SchemaChangeType string

const (
	ChangeCreated SchemaChangeType = "CREATED"
	ChangeUpdated SchemaChangeType = "UPDATED"
	ChangeDropped SchemaChangeType = "DROPPED"
)

// SchemaChangeTarget is the kind of schema object affected.
type SchemaChangeTarget string

const (
	TargetKeyspace SchemaChangeTarget = "KEYSPACE"
	TargetTable    SchemaChangeTarget = "TABLE"
)

// SchemaChange describes a completed DDL operation for the client reply.
type SchemaChange struct {
	Type     SchemaChangeType
	Target   SchemaChangeTarget
	Keyspace string
	Object   string // table name, empty for keyspace-level changes
}

// Result is the coordinator's answer to one executed statement.
type Result struct {
	Kind ResultKind

	// ResultRows
	Keyspace string // keyspace the rows came from (also set for ResultSetKeyspace)
	Table    string
	Columns  []string
	Rows     []storage.Row

	// ResultSchemaChange
	Change *SchemaChange
}
