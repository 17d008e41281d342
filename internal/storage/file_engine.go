package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const replicationDirName = "_replication"

// tableSet holds the primary and replica tableFile for one keyspace/table
// pair. clusteringCols here is the full primary key (partition key columns
// followed by clustering columns, in that order): this engine does not
// distinguish partition key from clustering key internally, since it never
// needs to recompute partition ownership itself, only to recognize distinct
// rows within the file it has been handed. The coordinator is the layer that
// decides partition-key routing and intra-partition clustering order.
type tableSet struct {
	columns        []string
	clusteringCols []string

	primary *tableFile
	replica *tableFile
}

// FileEngine is the on-disk implementation of Engine: one CSV row file plus
// byte-range index per keyspace/table/namespace, rooted under a data
// directory with a parallel layout for primary and replication copies.
type FileEngine struct {
	mu sync.RWMutex

	baseDir   string
	keyspaces map[string]bool
	tables    map[string]*tableSet // key: "keyspace/table"
}

// NewFileEngine opens (creating if necessary) a storage engine rooted at
// baseDir.
func NewFileEngine(baseDir string) (*FileEngine, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir: %v", ErrIO, err)
	}
	return &FileEngine{
		baseDir:   baseDir,
		keyspaces: make(map[string]bool),
		tables:    make(map[string]*tableSet),
	}, nil
}

func tableKey(ks, table string) string {
	return ks + "/" + table
}

func (e *FileEngine) ksDir(ks string) string {
	return filepath.Join(e.baseDir, ks)
}

func (e *FileEngine) tableDataPath(ks, table string, isReplication bool) string {
	if isReplication {
		return filepath.Join(e.ksDir(ks), replicationDirName, table+".csv")
	}
	return filepath.Join(e.ksDir(ks), table+".csv")
}

func (e *FileEngine) tableIndexPath(ks, table string, isReplication bool) string {
	if isReplication {
		return filepath.Join(e.ksDir(ks), replicationDirName, table+".idx")
	}
	return filepath.Join(e.ksDir(ks), table+".idx")
}

func (e *FileEngine) CreateKeyspace(ks string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(e.ksDir(ks), replicationDirName), 0755); err != nil {
		return fmt.Errorf("%w: creating keyspace dir: %v", ErrIO, err)
	}
	e.keyspaces[ks] = true
	return nil
}

func (e *FileEngine) DropKeyspace(ks string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.keyspaces[ks] {
		return ErrNoSuchKeyspace
	}
	if err := os.RemoveAll(e.ksDir(ks)); err != nil {
		return fmt.Errorf("%w: removing keyspace dir: %v", ErrIO, err)
	}
	delete(e.keyspaces, ks)
	for key := range e.tables {
		if strings.HasPrefix(key, ks+"/") {
			delete(e.tables, key)
		}
	}
	return nil
}

func (e *FileEngine) CreateTable(ks, table string, columns []string, clusteringCols []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.keyspaces[ks] {
		return ErrNoSuchKeyspace
	}

	primary := newTableFile(e.tableDataPath(ks, table, false), e.tableIndexPath(ks, table, false), columns, clusteringCols)
	replica := newTableFile(e.tableDataPath(ks, table, true), e.tableIndexPath(ks, table, true), columns, clusteringCols)

	e.tables[tableKey(ks, table)] = &tableSet{
		columns:        columns,
		clusteringCols: clusteringCols,
		primary:        primary,
		replica:        replica,
	}
	return nil
}

func (e *FileEngine) DropTable(ks, table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := tableKey(ks, table)
	if _, ok := e.tables[key]; !ok {
		return ErrNoSuchTable
	}
	os.Remove(e.tableDataPath(ks, table, false))
	os.Remove(e.tableIndexPath(ks, table, false))
	os.Remove(e.tableDataPath(ks, table, true))
	os.Remove(e.tableIndexPath(ks, table, true))
	delete(e.tables, key)
	return nil
}

func (e *FileEngine) lookup(ks, table string) (*tableSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.keyspaces[ks] {
		return nil, ErrNoSuchKeyspace
	}
	ts, ok := e.tables[tableKey(ks, table)]
	if !ok {
		return nil, ErrNoSuchTable
	}
	return ts, nil
}

func (e *FileEngine) AlterAddColumn(ks, table, column string) error {
	ts, err := e.lookup(ks, table)
	if err != nil {
		return err
	}
	ts.columns = append(ts.columns, column)
	for _, tf := range []*tableFile{ts.primary, ts.replica} {
		tf.mu.Lock()
		// load first: the widened header must be rewritten over the current
		// on-disk rows, or the next load would revert it
		if err := tf.load(); err != nil {
			tf.mu.Unlock()
			return err
		}
		tf.columns = ts.columns
		err := tf.rewrite()
		tf.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *FileEngine) AlterDropColumn(ks, table, column string) error {
	ts, err := e.lookup(ks, table)
	if err != nil {
		return err
	}
	newCols := make([]string, 0, len(ts.columns))
	for _, c := range ts.columns {
		if c != column {
			newCols = append(newCols, c)
		}
	}
	ts.columns = newCols
	for _, tf := range []*tableFile{ts.primary, ts.replica} {
		tf.mu.Lock()
		if err := tf.load(); err != nil {
			tf.mu.Unlock()
			return err
		}
		tf.columns = newCols
		for _, row := range tf.rows {
			delete(row, column)
		}
		err := tf.rewrite()
		tf.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *FileEngine) AlterRenameColumn(ks, table, from, to string) error {
	ts, err := e.lookup(ks, table)
	if err != nil {
		return err
	}
	for i, c := range ts.columns {
		if c == from {
			ts.columns[i] = to
		}
	}
	for i, c := range ts.clusteringCols {
		if c == from {
			ts.clusteringCols[i] = to
		}
	}
	for _, tf := range []*tableFile{ts.primary, ts.replica} {
		tf.mu.Lock()
		if err := tf.load(); err != nil {
			tf.mu.Unlock()
			return err
		}
		tf.columns = ts.columns
		tf.clusteringCols = ts.clusteringCols
		for _, row := range tf.rows {
			if v, ok := row[from]; ok {
				row[to] = v
				delete(row, from)
			}
		}
		err := tf.rewrite()
		tf.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *FileEngine) tableFileFor(ks, table string, isReplication bool) (*tableFile, error) {
	ts, err := e.lookup(ks, table)
	if err != nil {
		return nil, err
	}
	if isReplication {
		return ts.replica, nil
	}
	return ts.primary, nil
}

func (e *FileEngine) Insert(ks, table string, pkValues []string, row Row, isReplication bool) error {
	tf, err := e.tableFileFor(ks, table, isReplication)
	if err != nil {
		return err
	}

	tf.mu.Lock()
	defer tf.mu.Unlock()

	if err := tf.load(); err != nil {
		return err
	}

	key := tf.clusteringKey(row)
	replaced := false
	for i, r := range tf.rows {
		if tf.clusteringKey(r) == key {
			tf.rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		tf.rows = append(tf.rows, row)
	}
	tf.sortRows()
	return tf.rewrite()
}

func (e *FileEngine) Update(ks, table string, where []Predicate, assignments []Assignment, isReplication bool) (int, error) {
	tf, err := e.tableFileFor(ks, table, isReplication)
	if err != nil {
		return 0, err
	}

	tf.mu.Lock()
	defer tf.mu.Unlock()

	if err := tf.load(); err != nil {
		return 0, err
	}

	count := 0
	for i, row := range tf.rows {
		if !matchesPredicates(row, where) {
			continue
		}
		for _, a := range assignments {
			row[a.Column] = a.Value
		}
		tf.rows[i] = row
		count++
	}
	if count == 0 {
		return 0, nil
	}
	tf.sortRows()
	if err := tf.rewrite(); err != nil {
		return 0, err
	}
	return count, nil
}

func (e *FileEngine) Delete(ks, table string, where []Predicate, isReplication bool) (int, error) {
	tf, err := e.tableFileFor(ks, table, isReplication)
	if err != nil {
		return 0, err
	}

	tf.mu.Lock()
	defer tf.mu.Unlock()

	if err := tf.load(); err != nil {
		return 0, err
	}

	kept := make([]Row, 0, len(tf.rows))
	count := 0
	for _, row := range tf.rows {
		if matchesPredicates(row, where) {
			count++
			continue
		}
		kept = append(kept, row)
	}
	if count == 0 {
		return 0, nil
	}
	tf.rows = kept
	if err := tf.rewrite(); err != nil {
		return 0, err
	}
	return count, nil
}

// equalityPrefix returns the clustering-key prefix for a WHERE clause that
// pins every clustering column with a single equality term, which is the
// shape the byte-range index can serve directly.
func equalityPrefix(clusteringCols []string, where []Predicate) (string, bool) {
	if len(clusteringCols) == 0 {
		return "", false
	}
	values := make(map[string]string, len(where))
	for _, p := range where {
		if p.Op != OpEq {
			continue
		}
		if _, dup := values[p.Column]; dup {
			return "", false
		}
		values[p.Column] = p.Value
	}
	parts := make([]string, len(clusteringCols))
	for i, c := range clusteringCols {
		v, ok := values[c]
		if !ok {
			return "", false
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f"), true
}

func (e *FileEngine) Select(ks, table string, projection []string, where []Predicate, orderBy []OrderBy, limit int, isReplication bool) ([]Row, error) {
	tf, err := e.tableFileFor(ks, table, isReplication)
	if err != nil {
		return nil, err
	}

	tf.mu.Lock()
	var rows []Row
	served := false
	if prefix, ok := equalityPrefix(tf.clusteringCols, where); ok {
		rows, served, err = tf.readRange(prefix)
	}
	if err == nil && !served {
		if err = tf.load(); err == nil {
			rows = make([]Row, len(tf.rows))
			copy(rows, tf.rows)
		}
	}
	tf.mu.Unlock()
	if err != nil {
		return nil, err
	}

	matched := rows[:0:0]
	for _, row := range rows {
		if matchesPredicates(row, where) {
			matched = append(matched, row)
		}
	}

	if len(orderBy) > 0 {
		sortRowsBy(matched, orderBy)
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Row, len(matched))
	for i, row := range matched {
		out[i] = project(row, projection)
	}
	return out, nil
}

func (e *FileEngine) Close() error {
	return nil
}
