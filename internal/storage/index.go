package storage

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// indexEntry maps one clustering-key prefix to the contiguous byte range in
// the row file holding every row with that prefix, for range scans. Rows
// with the same clustering prefix are kept contiguous in the file.
type indexEntry struct {
	prefix string
	start  int64
	end    int64
}

// tableIndex is the thread-safe in-memory index for one table file, backed
// by a sibling ".idx" file on disk.
type tableIndex struct {
	mu      sync.RWMutex
	entries []indexEntry
}

func newTableIndex() *tableIndex {
	return &tableIndex{}
}

// rebuild replaces the index wholesale, used after every full rewrite of the
// row file (this engine keeps rows sorted in memory and rewrites the file on
// each mutation, rather than maintaining an append-only log).
func (idx *tableIndex) rebuild(entries []indexEntry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = entries
}

// rangeFor returns the byte range for rows matching prefix, if any.
func (idx *tableIndex) rangeFor(prefix string) (int64, int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.entries {
		if e.prefix == prefix {
			return e.start, e.end, true
		}
	}
	return 0, 0, false
}

// writeFile persists the index to disk as "prefix,start,end" lines.
func (idx *tableIndex) writeFile(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating index file: %v", ErrIO, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range idx.entries {
		if _, err := fmt.Fprintf(w, "%s,%d,%d\n", e.prefix, e.start, e.end); err != nil {
			return fmt.Errorf("%w: writing index entry: %v", ErrIO, err)
		}
	}
	return w.Flush()
}

// loadFile reads a previously written index file back into memory.
func (idx *tableIndex) loadFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: opening index file: %v", ErrIO, err)
	}
	defer f.Close()

	var entries []indexEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			continue
		}
		start, _ := strconv.ParseInt(parts[1], 10, 64)
		end, _ := strconv.ParseInt(parts[2], 10, 64)
		entries = append(entries, indexEntry{prefix: parts[0], start: start, end: end})
	}
	idx.rebuild(entries)
	return scanner.Err()
}
