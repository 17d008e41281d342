package clientproto

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"

	"github.com/datastax/go-cassandra-native-protocol/datatype"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"github.com/google/uuid"

	"github.com/mini-cassandra/mini-cassandra/internal/coordinator"
	"github.com/mini-cassandra/mini-cassandra/internal/cql"
	"github.com/mini-cassandra/mini-cassandra/internal/partitioner"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
	"github.com/mini-cassandra/mini-cassandra/internal/storage"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// consistencyFromWire maps the protocol's consistency codes onto the three
// levels this cluster evaluates. The datacenter-scoped quorums collapse to
// QUORUM (single DC, simple strategy); everything else unrecognized is ONE.
func consistencyFromWire(c primitive.ConsistencyLevel) types.ConsistencyLevel {
	switch c {
	case primitive.ConsistencyLevelAll:
		return types.ConsistencyAll
	case primitive.ConsistencyLevelQuorum, primitive.ConsistencyLevelLocalQuorum, primitive.ConsistencyLevelEachQuorum:
		return types.ConsistencyQuorum
	default:
		return types.ConsistencyOne
	}
}

func consistencyToWire(c types.ConsistencyLevel) primitive.ConsistencyLevel {
	switch c {
	case types.ConsistencyAll:
		return primitive.ConsistencyLevelAll
	case types.ConsistencyQuorum:
		return primitive.ConsistencyLevelQuorum
	default:
		return primitive.ConsistencyLevelOne
	}
}

func wireDataType(dt types.DataType) datatype.DataType {
	switch dt {
	case types.TypeInt:
		return datatype.Int
	case types.TypeBoolean:
		return datatype.Boolean
	case types.TypeFloat:
		return datatype.Float
	case types.TypeDouble:
		return datatype.Double
	case types.TypeTimestamp:
		return datatype.Timestamp
	case types.TypeUuid:
		return datatype.Uuid
	default:
		return datatype.Varchar
	}
}

// encodeValue renders one stored column value in the binary form the
// client's driver expects for the column's declared type. Values that do
// not parse as their declared type fall back to their raw text bytes rather
// than failing the whole row.
func encodeValue(dt types.DataType, s string) message.Column {
	switch dt {
	case types.TypeInt:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			break
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(int32(n)))
		return out
	case types.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			break
		}
		if b {
			return message.Column{1}
		}
		return message.Column{0}
	case types.TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			break
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, math.Float32bits(float32(f)))
		return out
	case types.TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			break
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, math.Float64bits(f))
		return out
	case types.TypeTimestamp:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			break
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(n))
		return out
	case types.TypeUuid:
		u, err := uuid.Parse(s)
		if err != nil {
			break
		}
		return message.Column(u[:])
	}
	return message.Column(s)
}

// rowsMessage builds the Rows result body for a completed SELECT: column
// metadata typed from the schema, values encoded per declared type, NULL
// for columns absent from a row.
func rowsMessage(catalog *schema.Catalog, res *coordinator.Result) *message.RowsResult {
	columnTypes := make([]types.DataType, len(res.Columns))
	for i := range columnTypes {
		columnTypes[i] = types.TypeText
	}
	if ks, err := catalog.Keyspace(res.Keyspace); err == nil {
		if t, err := ks.Table(res.Table); err == nil {
			for i, name := range res.Columns {
				if col, ok := t.ColumnByName(name); ok {
					columnTypes[i] = col.Type
				}
			}
		}
	}

	metadata := make([]*message.ColumnMetadata, len(res.Columns))
	for i, name := range res.Columns {
		metadata[i] = &message.ColumnMetadata{
			Keyspace: res.Keyspace,
			Table:    res.Table,
			Name:     name,
			Index:    int32(i),
			Type:     wireDataType(columnTypes[i]),
		}
	}

	data := make(message.RowSet, len(res.Rows))
	for i, row := range res.Rows {
		wireRow := make(message.Row, len(res.Columns))
		for j, name := range res.Columns {
			if v, ok := row[name]; ok {
				wireRow[j] = encodeValue(columnTypes[j], v)
			}
		}
		data[i] = wireRow
	}

	return &message.RowsResult{
		Metadata: &message.RowsMetadata{
			ColumnCount: int32(len(res.Columns)),
			Columns:     metadata,
		},
		Data: data,
	}
}

func schemaChangeMessage(change *coordinator.SchemaChange) *message.SchemaChangeResult {
	out := &message.SchemaChangeResult{
		Keyspace: change.Keyspace,
		Object:   change.Object,
	}
	switch change.Type {
	case coordinator.ChangeCreated:
		out.ChangeType = primitive.SchemaChangeTypeCreated
	case coordinator.ChangeUpdated:
		out.ChangeType = primitive.SchemaChangeTypeUpdated
	case coordinator.ChangeDropped:
		out.ChangeType = primitive.SchemaChangeTypeDropped
	}
	switch change.Target {
	case coordinator.TargetKeyspace:
		out.Target = primitive.SchemaChangeTargetKeyspace
	case coordinator.TargetTable:
		out.Target = primitive.SchemaChangeTargetTable
	}
	return out
}

// errorMessage translates a coordinator error into the protocol's error
// body, per the taxonomy: syntax, schema, routing, replica and storage
// failures each map to their own error code.
func errorMessage(err error, consistency types.ConsistencyLevel) message.Error {
	var unavailable *coordinator.UnavailableError
	if errors.As(err, &unavailable) {
		return &message.Unavailable{
			ErrorMessage: err.Error(),
			Consistency:  consistencyToWire(unavailable.Consistency),
			Required:     int32(unavailable.Required),
			Alive:        int32(unavailable.Alive),
		}
	}

	var timeout *coordinator.TimeoutError
	if errors.As(err, &timeout) {
		if timeout.Write {
			return &message.WriteTimeout{
				ErrorMessage: err.Error(),
				Consistency:  consistencyToWire(timeout.Consistency),
				Received:     int32(timeout.Received),
				BlockFor:     int32(timeout.Required),
				WriteType:    primitive.WriteTypeSimple,
			}
		}
		return &message.ReadTimeout{
			ErrorMessage: err.Error(),
			Consistency:  consistencyToWire(timeout.Consistency),
			Received:     int32(timeout.Received),
			BlockFor:     int32(timeout.Required),
			DataPresent:  false,
		}
	}

	switch {
	case errors.Is(err, cql.ErrSyntax):
		return &message.SyntaxError{ErrorMessage: err.Error()}
	case errors.Is(err, schema.ErrKeyspaceExists), errors.Is(err, schema.ErrTableExists):
		return &message.AlreadyExists{ErrorMessage: err.Error()}
	case errors.Is(err, schema.ErrKeyspaceNotFound), errors.Is(err, schema.ErrTableNotFound),
		errors.Is(err, schema.ErrColumnNotFound), errors.Is(err, schema.ErrColumnExists),
		errors.Is(err, schema.ErrInvalidSchema), errors.Is(err, coordinator.ErrInvalid),
		errors.Is(err, coordinator.ErrNoKeyspace):
		return &message.Invalid{ErrorMessage: err.Error()}
	case errors.Is(err, partitioner.ErrEmptyRing):
		return &message.Overloaded{ErrorMessage: err.Error()}
	case errors.Is(err, coordinator.ErrWriteTimeout):
		return &message.WriteTimeout{
			ErrorMessage: err.Error(),
			Consistency:  consistencyToWire(consistency),
			WriteType:    primitive.WriteTypeSimple,
		}
	case errors.Is(err, coordinator.ErrReadTimeout):
		return &message.ReadTimeout{
			ErrorMessage: err.Error(),
			Consistency:  consistencyToWire(consistency),
		}
	case errors.Is(err, storage.ErrIO):
		return &message.ServerError{ErrorMessage: err.Error()}
	default:
		return &message.ServerError{ErrorMessage: err.Error()}
	}
}
