package cql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// ErrSyntax tags every parse failure so callers can map it to a
// client-visible syntax error without string matching.
var ErrSyntax = errors.New("syntax error")

// Parse tokenizes and parses a single CQL statement, case-insensitive on
// keywords but preserving identifier case as written.
func Parse(input string) (Statement, error) {
	input = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(input), ";"))
	tokens, err := tokenize(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	p := &parser{tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return stmt, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) atEOF() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) keywordIs(kw string) bool {
	t := p.peek()
	return t.typ == tokenIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.keywordIs(kw) {
		return fmt.Errorf("cql: expected keyword %q, got %q", kw, p.peek().text)
	}
	p.next()
	return nil
}

func (p *parser) expectPunct(punct string) error {
	t := p.peek()
	if t.typ != tokenPunct || t.text != punct {
		return fmt.Errorf("cql: expected %q, got %q", punct, t.text)
	}
	p.next()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.typ != tokenIdent {
		return "", fmt.Errorf("cql: expected identifier, got %q", t.text)
	}
	p.next()
	return t.text, nil
}

// qualifiedName parses `table` or `keyspace.table`.
func (p *parser) qualifiedName() (keyspace, name string, err error) {
	first, err := p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if p.peek().typ == tokenPunct && p.peek().text == "." {
		p.next()
		second, err := p.expectIdent()
		if err != nil {
			return "", "", err
		}
		return first, second, nil
	}
	return "", first, nil
}

func (p *parser) parseStatement() (Statement, error) {
	t := p.peek()
	if t.typ != tokenIdent {
		return nil, fmt.Errorf("cql: expected a statement keyword, got %q", t.text)
	}

	switch strings.ToUpper(t.text) {
	case "CREATE":
		p.next()
		if p.keywordIs("KEYSPACE") {
			return p.parseCreateKeyspace()
		}
		if p.keywordIs("TABLE") {
			return p.parseCreateTable()
		}
		return nil, fmt.Errorf("cql: unsupported CREATE statement")
	case "DROP":
		p.next()
		if p.keywordIs("KEYSPACE") {
			return p.parseDropKeyspace()
		}
		if p.keywordIs("TABLE") {
			return p.parseDropTable()
		}
		return nil, fmt.Errorf("cql: unsupported DROP statement")
	case "ALTER":
		p.next()
		if p.keywordIs("KEYSPACE") {
			return p.parseAlterKeyspace()
		}
		return p.parseAlterTable()
	case "USE":
		p.next()
		ks, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return UseStatement{Keyspace: ks}, nil
	case "INSERT":
		p.next()
		return p.parseInsert()
	case "UPDATE":
		p.next()
		return p.parseUpdate()
	case "DELETE":
		p.next()
		return p.parseDelete()
	case "SELECT":
		p.next()
		return p.parseSelect()
	default:
		return nil, fmt.Errorf("cql: unrecognized statement %q", t.text)
	}
}

func (p *parser) parseIfNotExists() (bool, error) {
	if p.keywordIs("IF") {
		p.next()
		if err := p.expectKeyword("NOT"); err != nil {
			return false, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (p *parser) parseIfExists() bool {
	if p.keywordIs("IF") {
		p.next()
		if p.keywordIs("EXISTS") {
			p.next()
			return true
		}
	}
	return false
}

func (p *parser) parseCreateKeyspace() (Statement, error) {
	if err := p.expectKeyword("KEYSPACE"); err != nil {
		return nil, err
	}
	ifNotExists, err := p.parseIfNotExists()
	if err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	rf := 1
	if p.keywordIs("WITH") {
		p.next()
		if err := p.expectKeyword("REPLICATION"); err != nil {
			return nil, err
		}
		// WITH REPLICATION = { 'class': 'SimpleStrategy', 'replication_factor': N }
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		rf, err = p.parseReplicationMap()
		if err != nil {
			return nil, err
		}
	}

	return CreateKeyspaceStatement{Name: name, IfNotExists: ifNotExists, ReplicationFactor: rf}, nil
}

// parseReplicationMap parses a brace-delimited map literal like
// { 'class': 'SimpleStrategy', 'replication_factor': 3 } and returns the
// replication_factor value, since SimpleStrategy is the only class this
// cluster supports.
func (p *parser) parseReplicationMap() (int, error) {
	if err := p.expectPunct("{"); err != nil {
		return 0, err
	}
	rf := 1
	for {
		if p.peek().typ == tokenPunct && p.peek().text == "}" {
			p.next()
			break
		}
		keyTok := p.next()
		if err := p.expectPunct(":"); err != nil {
			return 0, err
		}
		valTok := p.next()
		if strings.Trim(keyTok.text, "'") == "replication_factor" {
			n, err := strconv.Atoi(valTok.text)
			if err == nil {
				rf = n
			}
		}
		if p.peek().typ == tokenPunct && p.peek().text == "," {
			p.next()
			continue
		}
	}
	return rf, nil
}

func (p *parser) parseAlterKeyspace() (Statement, error) {
	if err := p.expectKeyword("KEYSPACE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("WITH"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("REPLICATION"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	rf, err := p.parseReplicationMap()
	if err != nil {
		return nil, err
	}
	return AlterKeyspaceStatement{Name: name, ReplicationFactor: rf}, nil
}

func (p *parser) parseDropKeyspace() (Statement, error) {
	if err := p.expectKeyword("KEYSPACE"); err != nil {
		return nil, err
	}
	ifExists := p.parseIfExists()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return DropKeyspaceStatement{Name: name, IfExists: ifExists}, nil
}

func (p *parser) parseCreateTable() (Statement, error) {
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	ifNotExists, err := p.parseIfNotExists()
	if err != nil {
		return nil, err
	}
	ks, table, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}

	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	stmt := CreateTableStatement{Keyspace: ks, Table: table, IfNotExists: ifNotExists}

	for {
		if p.keywordIs("PRIMARY") {
			p.next()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			pk, ck, err := p.parsePrimaryKeyClause()
			if err != nil {
				return nil, err
			}
			stmt.PartitionKeys = pk
			stmt.ClusteringCols = ck
		} else {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			typName, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			dt, ok := types.ParseDataType(strings.ToLower(typName))
			if !ok {
				return nil, fmt.Errorf("cql: unknown column type %q", typName)
			}
			stmt.Columns = append(stmt.Columns, ColumnDef{Name: name, Type: dt})
		}

		if p.peek().typ == tokenPunct && p.peek().text == "," {
			p.next()
			continue
		}
		break
	}

	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parsePrimaryKeyClause parses the body of PRIMARY KEY(...), supporting both
// a single partition key (a, b, c) and a composite partition key
// ((a, b), c, d). The opening paren has already been consumed.
func (p *parser) parsePrimaryKeyClause() (partitionKeys, clusteringCols []string, err error) {
	if p.peek().typ == tokenPunct && p.peek().text == "(" {
		p.next()
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, nil, err
			}
			partitionKeys = append(partitionKeys, col)
			if p.peek().typ == tokenPunct && p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, nil, err
		}
	} else {
		col, err := p.expectIdent()
		if err != nil {
			return nil, nil, err
		}
		partitionKeys = append(partitionKeys, col)
	}

	for p.peek().typ == tokenPunct && p.peek().text == "," {
		p.next()
		col, err := p.expectIdent()
		if err != nil {
			return nil, nil, err
		}
		clusteringCols = append(clusteringCols, col)
	}

	if err := p.expectPunct(")"); err != nil {
		return nil, nil, err
	}
	return partitionKeys, clusteringCols, nil
}

func (p *parser) parseDropTable() (Statement, error) {
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	ifExists := p.parseIfExists()
	ks, table, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	return DropTableStatement{Keyspace: ks, Table: table, IfExists: ifExists}, nil
}

func (p *parser) parseAlterTable() (Statement, error) {
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	ks, table, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	stmt := AlterTableStatement{Keyspace: ks, Table: table}

	switch {
	case p.keywordIs("ADD"):
		p.next()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		typName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		dt, ok := types.ParseDataType(strings.ToLower(typName))
		if !ok {
			return nil, fmt.Errorf("cql: unknown column type %q", typName)
		}
		stmt.AddColumn = &ColumnDef{Name: name, Type: dt}
	case p.keywordIs("DROP"):
		p.next()
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		stmt.DropColumn = col
	case p.keywordIs("RENAME"):
		p.next()
		from, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("TO"); err != nil {
			return nil, err
		}
		to, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		stmt.RenameFrom = from
		stmt.RenameTo = to
	default:
		return nil, fmt.Errorf("cql: unsupported ALTER TABLE clause")
	}
	return stmt, nil
}

func (p *parser) parseLiteral() (string, error) {
	t := p.next()
	switch t.typ {
	case tokenString, tokenNumber, tokenIdent:
		return t.text, nil
	default:
		return "", fmt.Errorf("cql: expected a literal value, got %q", t.text)
	}
}

func (p *parser) parseInsert() (Statement, error) {
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	ks, table, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}

	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var columns []string
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
		if p.peek().typ == tokenPunct && p.peek().text == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var values []string
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.peek().typ == tokenPunct && p.peek().text == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	ifNotExists, err := p.parseIfNotExists()
	if err != nil {
		return nil, err
	}

	return InsertStatement{Keyspace: ks, Table: table, Columns: columns, Values: values, IfNotExists: ifNotExists}, nil
}

func (p *parser) parseUpdate() (Statement, error) {
	ks, table, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}

	var assignments []Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, Assignment{Column: col, Value: val})
		if p.peek().typ == tokenPunct && p.peek().text == "," {
			p.next()
			continue
		}
		break
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	ifExists := p.parseIfExists()

	return UpdateStatement{Keyspace: ks, Table: table, Assignments: assignments, Where: where, IfExists: ifExists}, nil
}

func (p *parser) parseDelete() (Statement, error) {
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	ks, table, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	ifExists := p.parseIfExists()

	return DeleteStatement{Keyspace: ks, Table: table, Where: where, IfExists: ifExists}, nil
}

func (p *parser) parseSelect() (Statement, error) {
	var columns []string
	if p.peek().typ == tokenPunct && p.peek().text == "*" {
		p.next()
	} else {
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
			if p.peek().typ == tokenPunct && p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	ks, table, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	var orderBy []OrderTerm
	if p.keywordIs("ORDER") {
		p.next()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.keywordIs("DESC") {
				p.next()
				desc = true
			} else if p.keywordIs("ASC") {
				p.next()
			}
			orderBy = append(orderBy, OrderTerm{Column: col, Desc: desc})
			if p.peek().typ == tokenPunct && p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
	}

	limit := 0
	if p.keywordIs("LIMIT") {
		p.next()
		t := p.next()
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, fmt.Errorf("cql: invalid LIMIT value %q", t.text)
		}
		limit = n
	}

	return SelectStatement{Keyspace: ks, Table: table, Columns: columns, Where: where, OrderBy: orderBy, Limit: limit}, nil
}

func (p *parser) parseOptionalWhere() ([]Predicate, error) {
	if !p.keywordIs("WHERE") {
		return nil, nil
	}
	p.next()

	var preds []Predicate
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		opTok := p.next()
		if opTok.typ != tokenPunct {
			return nil, fmt.Errorf("cql: expected a comparison operator, got %q", opTok.text)
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		preds = append(preds, Predicate{Column: col, Op: opTok.text, Value: val})

		if p.keywordIs("AND") {
			p.next()
			continue
		}
		break
	}
	return preds, nil
}
