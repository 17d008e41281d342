// Package types holds the small set of values shared across package boundaries:
// node identity, membership status, consistency levels and data types used by
// the schema and storage layers.
package types

import "strings"

// NodeStatus is the application state gossiped about a node.
type NodeStatus int

const (
	StatusBootstrap NodeStatus = iota
	StatusNormal
	StatusLeaving
	StatusRemoving
	StatusDead
)

func (s NodeStatus) String() string {
	switch s {
	case StatusBootstrap:
		return "bootstrap"
	case StatusNormal:
		return "normal"
	case StatusLeaving:
		return "leaving"
	case StatusRemoving:
		return "removing"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ConsistencyLevel is the minimum number of replica acknowledgements required
// before a request is reported successful to the client.
type ConsistencyLevel string

const (
	ConsistencyOne    ConsistencyLevel = "ONE"
	ConsistencyQuorum ConsistencyLevel = "QUORUM"
	ConsistencyAll    ConsistencyLevel = "ALL"
)

// Threshold returns the number of acks needed for this consistency level
// given a replication factor.
func (c ConsistencyLevel) Threshold(rf int) int {
	switch c {
	case ConsistencyOne:
		return 1
	case ConsistencyAll:
		return rf
	default: // QUORUM
		return rf/2 + 1
	}
}

// DataType enumerates the column types the CQL subset supports.
type DataType int

const (
	TypeInt DataType = iota
	TypeText
	TypeBoolean
	TypeFloat
	TypeDouble
	TypeTimestamp
	TypeUuid
)

func (d DataType) String() string {
	switch d {
	case TypeInt:
		return "int"
	case TypeText:
		return "text"
	case TypeBoolean:
		return "boolean"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeTimestamp:
		return "timestamp"
	case TypeUuid:
		return "uuid"
	default:
		return "unknown"
	}
}

// ParseDataType maps a CQL type keyword (case-insensitive) to a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch strings.ToLower(s) {
	case "int", "INT":
		return TypeInt, true
	case "text", "TEXT", "varchar", "VARCHAR":
		return TypeText, true
	case "boolean", "BOOLEAN":
		return TypeBoolean, true
	case "float", "FLOAT":
		return TypeFloat, true
	case "double", "DOUBLE":
		return TypeDouble, true
	case "timestamp", "TIMESTAMP":
		return TypeTimestamp, true
	case "uuid", "UUID":
		return TypeUuid, true
	default:
		return 0, false
	}
}

// Node is a peer in the cluster as known to the partitioner and coordinator.
type Node struct {
	Addr   string
	Status NodeStatus
}
