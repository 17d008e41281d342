package coordinator

import (
	"fmt"

	"github.com/mini-cassandra/mini-cassandra/internal/cql"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
)

// whereByColumn indexes a WHERE clause by column name. Repeating a column is
// allowed only for range predicates on a clustering column (e.g. c > x AND
// c < y); equality terms must be unique.
func whereByColumn(where []cql.Predicate) map[string][]cql.Predicate {
	out := make(map[string][]cql.Predicate, len(where))
	for _, p := range where {
		out[p.Column] = append(out[p.Column], p)
	}
	return out
}

// validateWhereColumns checks every WHERE term names a real column and uses
// an operator this subset supports.
func validateWhereColumns(t *schema.Table, where []cql.Predicate) error {
	for _, p := range where {
		if _, ok := t.ColumnByName(p.Column); !ok {
			return fmt.Errorf("%w: unknown column %q in WHERE", ErrInvalid, p.Column)
		}
		switch p.Op {
		case "=", "<", ">":
		default:
			return fmt.Errorf("%w: operator %q not supported in WHERE", ErrInvalid, p.Op)
		}
	}
	return nil
}

// requireFullPartitionKey checks every partition-key column appears in the
// WHERE clause with an equality term.
func requireFullPartitionKey(t *schema.Table, byCol map[string][]cql.Predicate) error {
	for _, pk := range t.PartitionKeys {
		preds := byCol[pk]
		if len(preds) == 0 {
			return fmt.Errorf("%w: partition key column %q must be restricted", ErrInvalid, pk)
		}
		for _, p := range preds {
			if p.Op != "=" {
				return fmt.Errorf("%w: partition key column %q only supports =", ErrInvalid, pk)
			}
		}
		if len(preds) > 1 {
			return fmt.Errorf("%w: partition key column %q restricted more than once", ErrInvalid, pk)
		}
	}
	return nil
}

// validateClusteringPrefix checks that restricted clustering columns form a
// prefix of the clustering order, with only the last restricted column
// allowed to carry range operators.
func validateClusteringPrefix(t *schema.Table, byCol map[string][]cql.Predicate, requireFull bool) error {
	restricted := 0
	for i, cc := range t.ClusteringCols {
		preds := byCol[cc]
		if len(preds) == 0 {
			// the rest of the clustering columns must be unrestricted too
			for _, later := range t.ClusteringCols[i:] {
				if len(byCol[later]) > 0 {
					return fmt.Errorf("%w: clustering column %q restricted without preceding column %q", ErrInvalid, later, cc)
				}
			}
			break
		}
		restricted++
		hasEq := false
		for _, p := range preds {
			if p.Op == "=" {
				hasEq = true
			}
		}
		if hasEq && len(preds) > 1 {
			return fmt.Errorf("%w: clustering column %q mixes = with range operators", ErrInvalid, cc)
		}
		// a range-restricted clustering column must be the last one restricted
		if !hasEq && i+1 < len(t.ClusteringCols) && len(byCol[t.ClusteringCols[i+1]]) > 0 {
			return fmt.Errorf("%w: clustering column %q has a range restriction but %q is also restricted", ErrInvalid, cc, t.ClusteringCols[i+1])
		}
	}
	if requireFull && restricted < len(t.ClusteringCols) {
		return fmt.Errorf("%w: all clustering columns must be restricted", ErrInvalid)
	}

	// no non-primary-key columns in WHERE (no secondary indexes)
	for col := range byCol {
		if !t.IsPrimaryKeyColumn(col) {
			return fmt.Errorf("%w: column %q is not part of the primary key", ErrInvalid, col)
		}
	}
	return nil
}

func validateSelect(t *schema.Table, stmt cql.SelectStatement) error {
	for _, col := range stmt.Columns {
		if _, ok := t.ColumnByName(col); !ok {
			return fmt.Errorf("%w: unknown column %q in SELECT", ErrInvalid, col)
		}
	}
	if len(stmt.Where) == 0 {
		return fmt.Errorf("%w: SELECT requires a WHERE clause", ErrInvalid)
	}
	if err := validateWhereColumns(t, stmt.Where); err != nil {
		return err
	}
	byCol := whereByColumn(stmt.Where)
	if err := requireFullPartitionKey(t, byCol); err != nil {
		return err
	}
	if err := validateClusteringPrefix(t, byCol, false); err != nil {
		return err
	}

	// ORDER BY must name clustering columns in clustering order. Leading
	// clustering columns pinned by an equality restriction carry a single
	// value within the result, so ordering starts at the first unpinned one.
	pinned := 0
	for _, cc := range t.ClusteringCols {
		preds := byCol[cc]
		if len(preds) == 1 && preds[0].Op == "=" {
			pinned++
			continue
		}
		break
	}
	for i, term := range stmt.OrderBy {
		idx := pinned + i
		if idx >= len(t.ClusteringCols) || t.ClusteringCols[idx] != term.Column {
			return fmt.Errorf("%w: ORDER BY must follow the clustering order, got %q", ErrInvalid, term.Column)
		}
	}
	return nil
}

func validateInsert(t *schema.Table, stmt cql.InsertStatement) error {
	if len(stmt.Columns) == 0 {
		return fmt.Errorf("%w: INSERT requires a column list", ErrInvalid)
	}
	if len(stmt.Columns) != len(stmt.Values) {
		return fmt.Errorf("%w: INSERT has %d columns but %d values", ErrInvalid, len(stmt.Columns), len(stmt.Values))
	}
	provided := make(map[string]bool, len(stmt.Columns))
	for _, col := range stmt.Columns {
		if _, ok := t.ColumnByName(col); !ok {
			return fmt.Errorf("%w: unknown column %q in INSERT", ErrInvalid, col)
		}
		if provided[col] {
			return fmt.Errorf("%w: column %q listed twice in INSERT", ErrInvalid, col)
		}
		provided[col] = true
	}
	// missing columns default to NULL, but the primary key may not be NULL
	for _, pk := range t.PartitionKeys {
		if !provided[pk] {
			return fmt.Errorf("%w: partition key column %q may not be null", ErrInvalid, pk)
		}
	}
	for _, cc := range t.ClusteringCols {
		if !provided[cc] {
			return fmt.Errorf("%w: clustering column %q may not be null", ErrInvalid, cc)
		}
	}
	return nil
}

func validateUpdate(t *schema.Table, stmt cql.UpdateStatement) error {
	if len(stmt.Assignments) == 0 {
		return fmt.Errorf("%w: UPDATE requires a SET clause", ErrInvalid)
	}
	for _, a := range stmt.Assignments {
		if _, ok := t.ColumnByName(a.Column); !ok {
			return fmt.Errorf("%w: unknown column %q in SET", ErrInvalid, a.Column)
		}
		if t.IsPrimaryKeyColumn(a.Column) {
			return fmt.Errorf("%w: cannot SET primary key column %q", ErrInvalid, a.Column)
		}
	}
	if len(stmt.Where) == 0 {
		return fmt.Errorf("%w: UPDATE requires a WHERE clause", ErrInvalid)
	}
	if err := validateWhereColumns(t, stmt.Where); err != nil {
		return err
	}
	byCol := whereByColumn(stmt.Where)
	if err := requireFullPartitionKey(t, byCol); err != nil {
		return err
	}
	// UPDATE addresses a single row: the full primary key, all equalities.
	for _, cc := range t.ClusteringCols {
		preds := byCol[cc]
		if len(preds) != 1 || preds[0].Op != "=" {
			return fmt.Errorf("%w: UPDATE must restrict clustering column %q with =", ErrInvalid, cc)
		}
	}
	return validateClusteringPrefix(t, byCol, true)
}

func validateDelete(t *schema.Table, stmt cql.DeleteStatement) error {
	if len(stmt.Where) == 0 {
		return fmt.Errorf("%w: DELETE requires a WHERE clause", ErrInvalid)
	}
	if err := validateWhereColumns(t, stmt.Where); err != nil {
		return err
	}
	byCol := whereByColumn(stmt.Where)
	if err := requireFullPartitionKey(t, byCol); err != nil {
		return err
	}
	// clustering columns may form a prefix: omitting all of them deletes the
	// whole partition, a full set deletes a single row.
	return validateClusteringPrefix(t, byCol, false)
}

// partitionKeyFromWhere extracts the partition-key values in declaration
// order from a validated WHERE clause, for token hashing.
func partitionKeyFromWhere(t *schema.Table, where []cql.Predicate) []string {
	byCol := whereByColumn(where)
	out := make([]string, 0, len(t.PartitionKeys))
	for _, pk := range t.PartitionKeys {
		out = append(out, byCol[pk][0].Value)
	}
	return out
}

// partitionKeyFromInsert extracts the partition-key values in declaration
// order from a validated INSERT column/value list.
func partitionKeyFromInsert(t *schema.Table, stmt cql.InsertStatement) []string {
	byCol := make(map[string]string, len(stmt.Columns))
	for i, col := range stmt.Columns {
		byCol[col] = stmt.Values[i]
	}
	out := make([]string, 0, len(t.PartitionKeys))
	for _, pk := range t.PartitionKeys {
		out = append(out, byCol[pk])
	}
	return out
}
