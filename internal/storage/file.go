package storage

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// tableFile is the in-memory and on-disk state for one (keyspace, table,
// namespace) row file. Rows are kept sorted by clustering key in memory and
// the CSV file plus its index are rewritten wholesale on every mutation, so
// there is never an operational log to compact.
type tableFile struct {
	mu sync.Mutex

	dataPath  string
	indexPath string

	columns        []string // header order
	clusteringCols []string

	rows []Row
	idx  *tableIndex
}

func newTableFile(dataPath, indexPath string, columns, clusteringCols []string) *tableFile {
	return &tableFile{
		dataPath:       dataPath,
		indexPath:      indexPath,
		columns:        columns,
		clusteringCols: clusteringCols,
		idx:            newTableIndex(),
	}
}

// clusteringKey joins a row's clustering column values into the prefix used
// for both in-memory sorting and on-disk index lookups.
func (tf *tableFile) clusteringKey(r Row) string {
	parts := make([]string, len(tf.clusteringCols))
	for i, c := range tf.clusteringCols {
		parts[i] = r[c]
	}
	return strings.Join(parts, "\x1f")
}

// load reads the row file back into memory, tolerating a file that does not
// exist yet (a freshly created table).
func (tf *tableFile) load() error {
	f, err := os.Open(tf.dataPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: opening row file: %v", ErrIO, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	header, err := r.Read()
	if err != nil {
		if err.Error() == "EOF" {
			return nil
		}
		return fmt.Errorf("%w: reading row file header: %v", ErrIO, err)
	}
	tf.columns = header

	var rows []Row
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) && record[i] != "" {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	tf.rows = rows
	tf.sortRows()

	return tf.idx.loadFile(tf.indexPath)
}

func (tf *tableFile) sortRows() {
	sort.SliceStable(tf.rows, func(i, j int) bool {
		return tf.clusteringKey(tf.rows[i]) < tf.clusteringKey(tf.rows[j])
	})
}

// rewrite persists the current in-memory rows to the CSV data file and
// rebuilds the byte-range index, grouping contiguous rows sharing the same
// clustering prefix into a single index entry.
func (tf *tableFile) rewrite() error {
	f, err := os.Create(tf.dataPath)
	if err != nil {
		return fmt.Errorf("%w: creating row file: %v", ErrIO, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)

	if err := w.Write(tf.columns); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flushing header: %v", ErrIO, err)
	}

	var offset int64
	headerLine, _ := encodeCSVLine(tf.columns)
	offset += int64(len(headerLine))

	var entries []indexEntry
	var curPrefix string
	var curStart int64 = -1

	for _, row := range tf.rows {
		record := make([]string, len(tf.columns))
		for i, col := range tf.columns {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("%w: writing row: %v", ErrIO, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("%w: flushing row: %v", ErrIO, err)
		}

		line, _ := encodeCSVLine(record)
		prefix := tf.clusteringKey(row)
		if prefix != curPrefix || curStart < 0 {
			if curStart >= 0 {
				entries = append(entries, indexEntry{prefix: curPrefix, start: curStart, end: offset})
			}
			curPrefix = prefix
			curStart = offset
		}
		offset += int64(len(line))
	}
	if curStart >= 0 {
		entries = append(entries, indexEntry{prefix: curPrefix, start: curStart, end: offset})
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: flushing row file: %v", ErrIO, err)
	}

	tf.idx.rebuild(entries)
	return tf.idx.writeFile(tf.indexPath)
}

// readRange serves a point lookup from the byte-range index: when the index
// has an entry for prefix, only that slice of the row file is read and
// parsed instead of the whole file. The boolean reports whether the index
// could serve the lookup; on a miss the caller falls back to a full load.
func (tf *tableFile) readRange(prefix string) ([]Row, bool, error) {
	if err := tf.idx.loadFile(tf.indexPath); err != nil {
		return nil, false, err
	}
	start, end, ok := tf.idx.rangeFor(prefix)
	if !ok || end <= start {
		return nil, false, nil
	}

	f, err := os.Open(tf.dataPath)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: opening row file: %v", ErrIO, err)
	}
	defer f.Close()

	header, err := csv.NewReader(bufio.NewReader(f)).Read()
	if err != nil {
		return nil, false, nil
	}

	buf := make([]byte, end-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, false, fmt.Errorf("%w: reading row range: %v", ErrIO, err)
	}

	r := csv.NewReader(bytes.NewReader(buf[:n]))
	var rows []Row
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) && record[i] != "" {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

// encodeCSVLine renders a single CSV record the same way encoding/csv would,
// used only to compute byte offsets for the index.
func encodeCSVLine(record []string) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(record); err != nil {
		return "", err
	}
	w.Flush()
	return sb.String(), w.Error()
}

func matchesPredicates(row Row, where []Predicate) bool {
	for _, p := range where {
		v := row[p.Column]
		switch p.Op {
		case OpEq:
			if v != p.Value {
				return false
			}
		case OpLt:
			if !(v < p.Value) {
				return false
			}
		case OpGt:
			if !(v > p.Value) {
				return false
			}
		}
	}
	return true
}

// sortRowsBy orders rows by the given clustering columns in sequence,
// honoring each column's requested direction.
func sortRowsBy(rows []Row, orderBy []OrderBy) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ob := range orderBy {
			vi, vj := rows[i][ob.Column], rows[j][ob.Column]
			if vi == vj {
				continue
			}
			if ob.Desc {
				return vi > vj
			}
			return vi < vj
		}
		return false
	})
}

func project(row Row, columns []string) Row {
	if len(columns) == 0 {
		out := make(Row, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}
