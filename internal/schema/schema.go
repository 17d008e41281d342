// Package schema holds keyspace and table metadata: the set of keyspaces
// known locally, mutated only through the coordinator.
package schema

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

var (
	ErrKeyspaceNotFound = errors.New("schema: keyspace not found")
	ErrKeyspaceExists   = errors.New("schema: keyspace already exists")
	ErrTableNotFound    = errors.New("schema: table not found")
	ErrTableExists      = errors.New("schema: table already exists")
	ErrColumnNotFound   = errors.New("schema: column not found")
	ErrColumnExists     = errors.New("schema: column already exists")
	ErrInvalidSchema    = errors.New("schema: invalid definition")
)

// ReplicationClass is the only replication strategy this subset supports.
type ReplicationClass string

const SimpleStrategy ReplicationClass = "SimpleStrategy"

// Column describes one table column.
type Column struct {
	Name           string
	Type           types.DataType
	IsPartitionKey bool
	IsClustering   bool
	AllowsNull     bool
}

// Table is a table definition within a keyspace.
type Table struct {
	Name             string
	Columns          []Column
	PartitionKeys    []string // column names, in declaration order
	ClusteringCols   []string // column names, in clustering order
	ClusteringOrder  []string // "ASC" or "DESC" per clustering column
}

// ColumnByName returns the column definition for name, if any.
func (t *Table) ColumnByName(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsPrimaryKeyColumn reports whether name is part of the partition or
// clustering key.
func (t *Table) IsPrimaryKeyColumn(name string) bool {
	for _, p := range t.PartitionKeys {
		if p == name {
			return true
		}
	}
	for _, c := range t.ClusteringCols {
		if c == name {
			return true
		}
	}
	return false
}

// validate checks the structural invariants of a table definition: at least
// one partition key, unique column names, primary-key columns disjoint.
func (t *Table) validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table has no name", ErrInvalidSchema)
	}
	if len(t.PartitionKeys) == 0 {
		return fmt.Errorf("%w: table %s has no partition key", ErrInvalidSchema, t.Name)
	}

	seen := make(map[string]bool)
	for _, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %s in table %s", ErrInvalidSchema, c.Name, t.Name)
		}
		seen[c.Name] = true
	}

	pk := make(map[string]bool)
	for _, p := range t.PartitionKeys {
		if _, ok := t.ColumnByName(p); !ok {
			return fmt.Errorf("%w: partition key %s not a column of %s", ErrInvalidSchema, p, t.Name)
		}
		pk[p] = true
	}
	for _, c := range t.ClusteringCols {
		if _, ok := t.ColumnByName(c); !ok {
			return fmt.Errorf("%w: clustering column %s not a column of %s", ErrInvalidSchema, c, t.Name)
		}
		if pk[c] {
			return fmt.Errorf("%w: column %s is both partition key and clustering column", ErrInvalidSchema, c)
		}
	}
	return nil
}

// Keyspace is a replication-scoped container of tables.
type Keyspace struct {
	mu sync.RWMutex

	Name              string
	ReplicationClass  ReplicationClass
	ReplicationFactor int

	tables map[string]*Table
}

// NewKeyspace creates an empty keyspace.
func NewKeyspace(name string, rf int) *Keyspace {
	return &Keyspace{
		Name:              name,
		ReplicationClass:  SimpleStrategy,
		ReplicationFactor: rf,
		tables:            make(map[string]*Table),
	}
}

// CreateTable adds a table definition to the keyspace.
func (k *Keyspace) CreateTable(t *Table, ifNotExists bool) error {
	if err := t.validate(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.tables[t.Name]; exists {
		if ifNotExists {
			return nil
		}
		return ErrTableExists
	}
	k.tables[t.Name] = t
	return nil
}

// DropTable removes a table definition from the keyspace.
func (k *Keyspace) DropTable(name string, ifExists bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.tables[name]; !exists {
		if ifExists {
			return nil
		}
		return ErrTableNotFound
	}
	delete(k.tables, name)
	return nil
}

// Table returns a table definition by name.
func (k *Keyspace) Table(name string) (*Table, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	t, exists := k.tables[name]
	if !exists {
		return nil, ErrTableNotFound
	}
	return t, nil
}

// Tables returns every table currently defined.
func (k *Keyspace) Tables() []*Table {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]*Table, 0, len(k.tables))
	for _, t := range k.tables {
		out = append(out, t)
	}
	return out
}

// AlterAddColumn adds a new column to an existing table.
func (k *Keyspace) AlterAddColumn(table string, col Column) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, exists := k.tables[table]
	if !exists {
		return ErrTableNotFound
	}
	if _, ok := t.ColumnByName(col.Name); ok {
		return ErrColumnExists
	}
	t.Columns = append(t.Columns, col)
	return nil
}

// AlterDropColumn removes a non-primary-key column from a table.
func (k *Keyspace) AlterDropColumn(table, column string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, exists := k.tables[table]
	if !exists {
		return ErrTableNotFound
	}
	if t.IsPrimaryKeyColumn(column) {
		return fmt.Errorf("%w: cannot drop primary key column %s", ErrInvalidSchema, column)
	}
	newCols := make([]Column, 0, len(t.Columns))
	found := false
	for _, c := range t.Columns {
		if c.Name == column {
			found = true
			continue
		}
		newCols = append(newCols, c)
	}
	if !found {
		return ErrColumnNotFound
	}
	t.Columns = newCols
	return nil
}

// AlterRenameColumn renames any column, including partition-key and
// clustering columns (updating PartitionKeys/ClusteringCols as needed).
func (k *Keyspace) AlterRenameColumn(table, from, to string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, exists := k.tables[table]
	if !exists {
		return ErrTableNotFound
	}
	if _, ok := t.ColumnByName(to); ok {
		return ErrColumnExists
	}
	found := false
	for i := range t.Columns {
		if t.Columns[i].Name == from {
			t.Columns[i].Name = to
			found = true
		}
	}
	if !found {
		return ErrColumnNotFound
	}
	for i, p := range t.PartitionKeys {
		if p == from {
			t.PartitionKeys[i] = to
		}
	}
	for i, c := range t.ClusteringCols {
		if c == from {
			t.ClusteringCols[i] = to
		}
	}
	return nil
}

// Catalog is the node-local schema store: every keyspace the coordinator
// knows about.
type Catalog struct {
	mu        sync.RWMutex
	keyspaces map[string]*Keyspace
}

// NewCatalog creates an empty schema catalog.
func NewCatalog() *Catalog {
	return &Catalog{keyspaces: make(map[string]*Keyspace)}
}

// CreateKeyspace registers a new keyspace.
func (c *Catalog) CreateKeyspace(name string, rf int, ifNotExists bool) (*Keyspace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.keyspaces[name]; exists {
		if ifNotExists {
			return c.keyspaces[name], nil
		}
		return nil, ErrKeyspaceExists
	}
	ks := NewKeyspace(name, rf)
	c.keyspaces[name] = ks
	return ks, nil
}

// DropKeyspace removes a keyspace.
func (c *Catalog) DropKeyspace(name string, ifExists bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.keyspaces[name]; !exists {
		if ifExists {
			return nil
		}
		return ErrKeyspaceNotFound
	}
	delete(c.keyspaces, name)
	return nil
}

// Keyspace looks up a keyspace by name.
func (c *Catalog) Keyspace(name string) (*Keyspace, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ks, exists := c.keyspaces[name]
	if !exists {
		return nil, ErrKeyspaceNotFound
	}
	return ks, nil
}

// Keyspaces returns every keyspace currently known.
func (c *Catalog) Keyspaces() []*Keyspace {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Keyspace, 0, len(c.keyspaces))
	for _, ks := range c.keyspaces {
		out = append(out, ks)
	}
	return out
}

// AlterKeyspaceReplication updates a keyspace's replication factor.
func (c *Catalog) AlterKeyspaceReplication(name string, rf int) error {
	c.mu.RLock()
	ks, exists := c.keyspaces[name]
	c.mu.RUnlock()
	if !exists {
		return ErrKeyspaceNotFound
	}
	ks.mu.Lock()
	ks.ReplicationFactor = rf
	ks.mu.Unlock()
	return nil
}
