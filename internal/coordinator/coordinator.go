// Package coordinator owns the node's schema catalog, partitioner handle and
// open-query table, and turns each parsed statement into local storage calls
// plus internode fan-out, counting replica acknowledgements against the
// request's consistency level.
package coordinator

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mini-cassandra/mini-cassandra/internal/config"
	"github.com/mini-cassandra/mini-cassandra/internal/cql"
	"github.com/mini-cassandra/mini-cassandra/internal/gossip"
	"github.com/mini-cassandra/mini-cassandra/internal/internode"
	"github.com/mini-cassandra/mini-cassandra/internal/partitioner"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
	"github.com/mini-cassandra/mini-cassandra/internal/storage"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// Session is per-client-connection state: the keyspace selected by USE.
type Session struct {
	mu       sync.Mutex
	keyspace string
}

// Keyspace returns the session's current keyspace, empty if none selected.
func (s *Session) Keyspace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyspace
}

// SetKeyspace records the keyspace selected by a USE statement.
func (s *Session) SetKeyspace(ks string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyspace = ks
}

// Coordinator routes statements: local execution against the storage engine
// for data this node holds, internode dispatch for everything else, and ack
// counting to decide when the client sees success.
type Coordinator struct {
	cfg        *config.Config
	selfAddr   string // this node's internode address, its identity on the ring
	catalog    *schema.Catalog
	ring       *partitioner.Ring
	engine     storage.Engine
	link       *internode.Link
	membership *gossip.Membership

	queries *openQueryTable
}

// New wires a coordinator to its collaborators and registers it as the
// link's handler for query frames.
func New(cfg *config.Config, catalog *schema.Catalog, ring *partitioner.Ring, engine storage.Engine, link *internode.Link, membership *gossip.Membership) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		selfAddr:   cfg.InternodeAddress(),
		catalog:    catalog,
		ring:       ring,
		engine:     engine,
		link:       link,
		membership: membership,
		queries:    newOpenQueryTable(),
	}
	link.Handle(internode.KindQueryRequest, c.handleQueryRequest)
	link.Handle(internode.KindQueryResponse, c.handleQueryResponse)
	return c
}

// SelfAddr returns this node's identity on the ring.
func (c *Coordinator) SelfAddr() string { return c.selfAddr }

// OpenQueries returns the number of in-flight query handles, for the admin
// plane.
func (c *Coordinator) OpenQueries() int { return c.queries.size() }

// Catalog exposes the schema catalog for read-only admin display.
func (c *Coordinator) Catalog() *schema.Catalog { return c.catalog }

// Execute runs one CQL statement on behalf of a client session and blocks
// until the outcome is known: enough replica acks, failure, or the
// per-request deadline.
func (c *Coordinator) Execute(session *Session, cqlText string, consistency types.ConsistencyLevel) (*Result, error) {
	stmt, err := cql.Parse(cqlText)
	if err != nil {
		return nil, err
	}

	switch s := stmt.(type) {
	case cql.UseStatement:
		if _, err := c.catalog.Keyspace(s.Keyspace); err != nil {
			return nil, err
		}
		session.SetKeyspace(s.Keyspace)
		return &Result{Kind: ResultSetKeyspace, Keyspace: s.Keyspace}, nil

	case cql.CreateKeyspaceStatement, cql.DropKeyspaceStatement, cql.AlterKeyspaceStatement,
		cql.CreateTableStatement, cql.DropTableStatement, cql.AlterTableStatement:
		return c.executeDDL(session, stmt, cqlText)

	case cql.InsertStatement:
		ks, t, err := c.resolveTable(session, s.Keyspace, s.Table)
		if err != nil {
			return nil, err
		}
		if err := validateInsert(t, s); err != nil {
			return nil, err
		}
		return c.executeWrite(ks, cqlText, partitionKeyFromInsert(t, s), consistency)

	case cql.UpdateStatement:
		ks, t, err := c.resolveTable(session, s.Keyspace, s.Table)
		if err != nil {
			return nil, err
		}
		if err := validateUpdate(t, s); err != nil {
			return nil, err
		}
		return c.executeWrite(ks, cqlText, partitionKeyFromWhere(t, s.Where), consistency)

	case cql.DeleteStatement:
		ks, t, err := c.resolveTable(session, s.Keyspace, s.Table)
		if err != nil {
			return nil, err
		}
		if err := validateDelete(t, s); err != nil {
			return nil, err
		}
		return c.executeWrite(ks, cqlText, partitionKeyFromWhere(t, s.Where), consistency)

	case cql.SelectStatement:
		ks, t, err := c.resolveTable(session, s.Keyspace, s.Table)
		if err != nil {
			return nil, err
		}
		if err := validateSelect(t, s); err != nil {
			return nil, err
		}
		return c.executeRead(ks, s.Table, cqlText, partitionKeyFromWhere(t, s.Where), consistency)

	default:
		return nil, fmt.Errorf("%w: statement type not routable", ErrInvalid)
	}
}

// resolveKeyspace picks the keyspace a statement addresses: its qualified
// name if present, the session's USE keyspace otherwise.
func (c *Coordinator) resolveKeyspace(session *Session, stmtKeyspace string) (string, error) {
	ks := stmtKeyspace
	if ks == "" && session != nil {
		ks = session.Keyspace()
	}
	if ks == "" {
		return "", ErrNoKeyspace
	}
	return ks, nil
}

func (c *Coordinator) resolveTable(session *Session, stmtKeyspace, table string) (string, *schema.Table, error) {
	ksName, err := c.resolveKeyspace(session, stmtKeyspace)
	if err != nil {
		return "", nil, err
	}
	ks, err := c.catalog.Keyspace(ksName)
	if err != nil {
		return "", nil, err
	}
	t, err := ks.Table(table)
	if err != nil {
		return "", nil, err
	}
	return ksName, t, nil
}

// --- DDL ---

// executeDDL applies a schema change locally first, then forwards the
// statement to every other ring node. Cluster-wide DDL is not serialized:
// each node applies it independently and idempotency comes from the IF
// NOT EXISTS / IF EXISTS guards plus schema operations being repeatable.
func (c *Coordinator) executeDDL(session *Session, stmt cql.Statement, cqlText string) (*Result, error) {
	ksName := statementKeyspace(stmt)
	if ksName == "" {
		var err error
		if ksName, err = c.resolveKeyspace(session, ""); err != nil && requiresKeyspace(stmt) {
			return nil, err
		}
	}

	change, err := c.applyDDL(stmt, ksName)
	if err != nil {
		return nil, err
	}

	req := queryRequest{Origin: c.selfAddr, Keyspace: ksName, CQL: cqlText}
	body := encodeQueryRequest(req)
	for _, peer := range c.ring.Nodes() {
		if peer == c.selfAddr {
			continue
		}
		if err := c.link.Send(peer, internode.KindQueryRequest, body); err != nil {
			log.Printf("coordinator: ddl forward to %s failed: %v", peer, err)
		}
	}

	return &Result{Kind: ResultSchemaChange, Change: change}, nil
}

// statementKeyspace returns the keyspace a DDL statement names explicitly.
func statementKeyspace(stmt cql.Statement) string {
	switch s := stmt.(type) {
	case cql.CreateKeyspaceStatement:
		return s.Name
	case cql.DropKeyspaceStatement:
		return s.Name
	case cql.AlterKeyspaceStatement:
		return s.Name
	case cql.CreateTableStatement:
		return s.Keyspace
	case cql.DropTableStatement:
		return s.Keyspace
	case cql.AlterTableStatement:
		return s.Keyspace
	}
	return ""
}

// requiresKeyspace reports whether a DDL statement needs a keyspace context
// beyond what it names itself (table-level DDL with an unqualified name).
func requiresKeyspace(stmt cql.Statement) bool {
	switch stmt.(type) {
	case cql.CreateKeyspaceStatement, cql.DropKeyspaceStatement, cql.AlterKeyspaceStatement:
		return false
	}
	return true
}

// applyDDL mutates the local schema catalog and storage layout for one DDL
// statement. It is called both for client statements on the originating
// node and for forwarded statements arriving over the internode link.
func (c *Coordinator) applyDDL(stmt cql.Statement, ksName string) (*SchemaChange, error) {
	switch s := stmt.(type) {
	case cql.CreateKeyspaceStatement:
		if _, err := c.catalog.CreateKeyspace(s.Name, s.ReplicationFactor, s.IfNotExists); err != nil {
			return nil, err
		}
		if err := c.engine.CreateKeyspace(s.Name); err != nil {
			return nil, err
		}
		return &SchemaChange{Type: ChangeCreated, Target: TargetKeyspace, Keyspace: s.Name}, nil

	case cql.DropKeyspaceStatement:
		if err := c.catalog.DropKeyspace(s.Name, s.IfExists); err != nil {
			return nil, err
		}
		if err := c.engine.DropKeyspace(s.Name); err != nil && !errors.Is(err, storage.ErrNoSuchKeyspace) {
			return nil, err
		}
		return &SchemaChange{Type: ChangeDropped, Target: TargetKeyspace, Keyspace: s.Name}, nil

	case cql.AlterKeyspaceStatement:
		if s.ReplicationFactor < 1 {
			return nil, fmt.Errorf("%w: replication factor must be at least 1", ErrInvalid)
		}
		if err := c.catalog.AlterKeyspaceReplication(s.Name, s.ReplicationFactor); err != nil {
			return nil, err
		}
		return &SchemaChange{Type: ChangeUpdated, Target: TargetKeyspace, Keyspace: s.Name}, nil

	case cql.CreateTableStatement:
		ks, err := c.catalog.Keyspace(ksName)
		if err != nil {
			return nil, err
		}
		t := tableFromStatement(s)
		if err := ks.CreateTable(t, s.IfNotExists); err != nil {
			return nil, err
		}
		colNames := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			colNames[i] = col.Name
		}
		// the engine keys rows by the full primary key, partition columns
		// first
		pkCols := append(append([]string{}, t.PartitionKeys...), t.ClusteringCols...)
		if err := c.engine.CreateTable(ksName, t.Name, colNames, pkCols); err != nil {
			return nil, err
		}
		return &SchemaChange{Type: ChangeCreated, Target: TargetTable, Keyspace: ksName, Object: t.Name}, nil

	case cql.DropTableStatement:
		ks, err := c.catalog.Keyspace(ksName)
		if err != nil {
			return nil, err
		}
		if err := ks.DropTable(s.Table, s.IfExists); err != nil {
			return nil, err
		}
		if err := c.engine.DropTable(ksName, s.Table); err != nil && !errors.Is(err, storage.ErrNoSuchTable) {
			return nil, err
		}
		return &SchemaChange{Type: ChangeDropped, Target: TargetTable, Keyspace: ksName, Object: s.Table}, nil

	case cql.AlterTableStatement:
		ks, err := c.catalog.Keyspace(ksName)
		if err != nil {
			return nil, err
		}
		switch {
		case s.AddColumn != nil:
			col := schema.Column{Name: s.AddColumn.Name, Type: s.AddColumn.Type, AllowsNull: true}
			if err := ks.AlterAddColumn(s.Table, col); err != nil {
				return nil, err
			}
			if err := c.engine.AlterAddColumn(ksName, s.Table, s.AddColumn.Name); err != nil {
				return nil, err
			}
		case s.DropColumn != "":
			if err := ks.AlterDropColumn(s.Table, s.DropColumn); err != nil {
				return nil, err
			}
			if err := c.engine.AlterDropColumn(ksName, s.Table, s.DropColumn); err != nil {
				return nil, err
			}
		case s.RenameFrom != "":
			if err := ks.AlterRenameColumn(s.Table, s.RenameFrom, s.RenameTo); err != nil {
				return nil, err
			}
			if err := c.engine.AlterRenameColumn(ksName, s.Table, s.RenameFrom, s.RenameTo); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: empty ALTER TABLE", ErrInvalid)
		}
		return &SchemaChange{Type: ChangeUpdated, Target: TargetTable, Keyspace: ksName, Object: s.Table}, nil
	}
	return nil, fmt.Errorf("%w: not a DDL statement", ErrInvalid)
}

// tableFromStatement builds the schema definition for a CREATE TABLE.
func tableFromStatement(s cql.CreateTableStatement) *schema.Table {
	isPK := make(map[string]bool, len(s.PartitionKeys))
	for _, p := range s.PartitionKeys {
		isPK[p] = true
	}
	isCC := make(map[string]bool, len(s.ClusteringCols))
	for _, c := range s.ClusteringCols {
		isCC[c] = true
	}

	cols := make([]schema.Column, len(s.Columns))
	for i, cd := range s.Columns {
		cols[i] = schema.Column{
			Name:           cd.Name,
			Type:           cd.Type,
			IsPartitionKey: isPK[cd.Name],
			IsClustering:   isCC[cd.Name],
			AllowsNull:     !isPK[cd.Name] && !isCC[cd.Name],
		}
	}
	order := make([]string, len(s.ClusteringCols))
	for i := range order {
		order[i] = "ASC"
	}
	return &schema.Table{
		Name:            s.Table,
		Columns:         cols,
		PartitionKeys:   s.PartitionKeys,
		ClusteringCols:  s.ClusteringCols,
		ClusteringOrder: order,
	}
}

// --- writes ---

// executeWrite fans one INSERT/UPDATE/DELETE out to the partition's
// placement list and blocks until the consistency threshold is met, the
// threshold becomes unreachable, or the deadline expires.
func (c *Coordinator) executeWrite(ksName, cqlText string, pkValues []string, consistency types.ConsistencyLevel) (*Result, error) {
	rf, err := c.replicationFactor(ksName)
	if err != nil {
		return nil, err
	}
	placement, err := c.ring.PlacementList(partitionKeyBytes(pkValues), rf)
	if err != nil {
		return nil, err
	}

	needed := consistency.Threshold(rf)
	if live := c.liveCount(placement); live < needed {
		return nil, &UnavailableError{Consistency: consistency, Required: needed, Alive: live}
	}

	q := c.queries.create(ksName, consistency, needed, len(placement))

	selfIdx := -1
	for i, target := range placement {
		if target == c.selfAddr {
			selfIdx = i
			continue
		}
		if !c.isLive(target) {
			c.queries.recordAck(q.id, false, nil, nil)
			continue
		}
		body := encodeQueryRequest(queryRequest{
			ID:            q.id,
			Origin:        c.selfAddr,
			Keyspace:      ksName,
			CQL:           cqlText,
			IsReplication: i > 0,
		})
		if err := c.link.Send(target, internode.KindQueryRequest, body); err != nil {
			log.Printf("coordinator: dispatch to %s failed: %v", target, err)
			c.queries.recordAck(q.id, false, nil, nil)
		}
	}

	// this node executes its own share after dispatching, counting against
	// the same handle as any peer
	if selfIdx >= 0 {
		if _, _, err := c.executeLocalDML(ksName, cqlText, selfIdx > 0); err != nil {
			log.Printf("coordinator: local write failed: %v", err)
			c.queries.recordAck(q.id, false, nil, nil)
		} else {
			c.queries.recordAck(q.id, true, nil, nil)
		}
	}

	select {
	case outcome := <-q.replyCh:
		if outcome.ok {
			return &Result{Kind: ResultVoid}, nil
		}
		return nil, &TimeoutError{Write: true, Consistency: consistency, Received: outcome.received, Required: needed}
	case <-time.After(c.cfg.RequestTimeout):
		received, _ := c.queries.progress(q.id)
		c.queries.clear(q.id)
		return nil, &TimeoutError{Write: true, Consistency: consistency, Received: received, Required: needed}
	}
}

// --- reads ---

// executeRead sends a SELECT to one replica from the placement list, moving
// to the next replica only when the previous one failed or timed out.
func (c *Coordinator) executeRead(ksName, table, cqlText string, pkValues []string, consistency types.ConsistencyLevel) (*Result, error) {
	rf, err := c.replicationFactor(ksName)
	if err != nil {
		return nil, err
	}
	placement, err := c.ring.PlacementList(partitionKeyBytes(pkValues), rf)
	if err != nil {
		return nil, err
	}

	attempted := 0
	for i, target := range placement {
		if !c.isLive(target) {
			continue
		}
		attempted++

		if target == c.selfAddr {
			columns, rows, err := c.executeLocalDML(ksName, cqlText, i > 0)
			if err != nil {
				log.Printf("coordinator: local read failed: %v", err)
				continue
			}
			return &Result{Kind: ResultRows, Keyspace: ksName, Table: table, Columns: columns, Rows: rows}, nil
		}

		q := c.queries.create(ksName, consistency, 1, 1)
		body := encodeQueryRequest(queryRequest{
			ID:            q.id,
			Origin:        c.selfAddr,
			Keyspace:      ksName,
			CQL:           cqlText,
			IsReplication: i > 0,
		})
		if err := c.link.Send(target, internode.KindQueryRequest, body); err != nil {
			log.Printf("coordinator: read dispatch to %s failed: %v", target, err)
			c.queries.clear(q.id)
			continue
		}

		select {
		case outcome := <-q.replyCh:
			if outcome.ok {
				return &Result{Kind: ResultRows, Keyspace: ksName, Table: table, Columns: outcome.columns, Rows: outcome.rows}, nil
			}
		case <-time.After(c.cfg.RequestTimeout):
			c.queries.clear(q.id)
		}
	}

	if attempted == 0 {
		return nil, &UnavailableError{Consistency: consistency, Required: 1, Alive: 0}
	}
	return nil, &TimeoutError{Write: false, Consistency: consistency, Received: 0, Required: 1}
}

// partitionKeyBytes is the hash input for a row: its partition-key values
// concatenated in declaration order.
func partitionKeyBytes(values []string) []byte {
	size := 0
	for _, v := range values {
		size += len(v)
	}
	out := make([]byte, 0, size)
	for _, v := range values {
		out = append(out, v...)
	}
	return out
}

// --- local execution ---

// executeLocalDML parses and runs one data statement against the local
// storage engine, in the namespace the isReplication flag selects.
func (c *Coordinator) executeLocalDML(ksName, cqlText string, isReplication bool) (columns []string, rows []storage.Row, err error) {
	stmt, err := cql.Parse(cqlText)
	if err != nil {
		return nil, nil, err
	}

	ks, err := c.catalog.Keyspace(ksName)
	if err != nil {
		return nil, nil, err
	}

	switch s := stmt.(type) {
	case cql.InsertStatement:
		t, err := ks.Table(s.Table)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, c.localInsert(ksName, t, s, isReplication)

	case cql.UpdateStatement:
		t, err := ks.Table(s.Table)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, c.localUpdate(ksName, t, s, isReplication)

	case cql.DeleteStatement:
		if _, err := ks.Table(s.Table); err != nil {
			return nil, nil, err
		}
		_, err = c.engine.Delete(ksName, s.Table, storagePredicates(s.Where), isReplication)
		return nil, nil, err

	case cql.SelectStatement:
		t, err := ks.Table(s.Table)
		if err != nil {
			return nil, nil, err
		}
		columns := s.Columns
		if len(columns) == 0 {
			columns = make([]string, len(t.Columns))
			for i, col := range t.Columns {
				columns[i] = col.Name
			}
		}
		orderBy := make([]storage.OrderBy, len(s.OrderBy))
		for i, term := range s.OrderBy {
			orderBy[i] = storage.OrderBy{Column: term.Column, Desc: term.Desc}
		}
		rows, err := c.engine.Select(ksName, s.Table, columns, storagePredicates(s.Where), orderBy, s.Limit, isReplication)
		if err != nil {
			return nil, nil, err
		}
		return columns, rows, nil
	}
	return nil, nil, fmt.Errorf("%w: not a data statement", ErrInvalid)
}

func (c *Coordinator) localInsert(ksName string, t *schema.Table, s cql.InsertStatement, isReplication bool) error {
	row := make(storage.Row, len(s.Columns))
	for i, col := range s.Columns {
		row[col] = s.Values[i]
	}

	pkPreds := make([]storage.Predicate, 0, len(t.PartitionKeys)+len(t.ClusteringCols))
	for _, pk := range t.PartitionKeys {
		pkPreds = append(pkPreds, storage.Predicate{Column: pk, Op: storage.OpEq, Value: row[pk]})
	}
	for _, cc := range t.ClusteringCols {
		pkPreds = append(pkPreds, storage.Predicate{Column: cc, Op: storage.OpEq, Value: row[cc]})
	}

	if s.IfNotExists {
		existing, err := c.engine.Select(ksName, s.Table, nil, pkPreds, nil, 1, isReplication)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			// the guard holds the other way: row exists, succeed silently
			return nil
		}
	}
	return c.engine.Insert(ksName, s.Table, partitionKeyFromInsert(t, s), row, isReplication)
}

func (c *Coordinator) localUpdate(ksName string, t *schema.Table, s cql.UpdateStatement, isReplication bool) error {
	preds := storagePredicates(s.Where)
	assignments := make([]storage.Assignment, len(s.Assignments))
	for i, a := range s.Assignments {
		assignments[i] = storage.Assignment{Column: a.Column, Value: a.Value}
	}

	count, err := c.engine.Update(ksName, s.Table, preds, assignments, isReplication)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if s.IfExists {
		// conditional update of a row that is not there: a silent no-op
		return nil
	}

	// unconditional UPDATE of an absent row inserts it, primary key from the
	// WHERE clause
	row := make(storage.Row, len(s.Where)+len(s.Assignments))
	for _, p := range s.Where {
		row[p.Column] = p.Value
	}
	for _, a := range s.Assignments {
		row[a.Column] = a.Value
	}
	return c.engine.Insert(ksName, s.Table, partitionKeyFromWhere(t, s.Where), row, isReplication)
}

func storagePredicates(where []cql.Predicate) []storage.Predicate {
	out := make([]storage.Predicate, 0, len(where))
	for _, p := range where {
		var op storage.Op
		switch p.Op {
		case "<":
			op = storage.OpLt
		case ">":
			op = storage.OpGt
		default:
			op = storage.OpEq
		}
		out = append(out, storage.Predicate{Column: p.Column, Op: op, Value: p.Value})
	}
	return out
}

// --- internode handlers ---

// handleQueryRequest executes a statement forwarded by a peer coordinator
// and answers with a response frame tagged by the same open-query id. DDL
// forwards carry id 0 and expect no response.
func (c *Coordinator) handleQueryRequest(from string, body []byte) {
	req, err := decodeQueryRequest(body)
	if err != nil {
		log.Printf("coordinator: bad query request from %s: %v", from, err)
		return
	}

	stmt, err := cql.Parse(req.CQL)
	if err != nil {
		c.respond(req, queryResponse{ID: req.ID, OK: false, Error: err.Error()})
		return
	}

	switch stmt.(type) {
	case cql.CreateKeyspaceStatement, cql.DropKeyspaceStatement, cql.AlterKeyspaceStatement,
		cql.CreateTableStatement, cql.DropTableStatement, cql.AlterTableStatement:
		if _, err := c.applyDDL(stmt, req.Keyspace); err != nil {
			log.Printf("coordinator: forwarded ddl from %s failed: %v", req.Origin, err)
			c.respond(req, queryResponse{ID: req.ID, OK: false, Error: err.Error()})
			return
		}
		c.respond(req, queryResponse{ID: req.ID, OK: true})

	default:
		columns, rows, err := c.executeLocalDML(req.Keyspace, req.CQL, req.IsReplication)
		if err != nil {
			c.respond(req, queryResponse{ID: req.ID, OK: false, Error: err.Error()})
			return
		}
		c.respond(req, queryResponse{ID: req.ID, OK: true, Columns: columns, Rows: rows})
	}
}

// respond sends a response frame back to the request's origin. Requests with
// id 0 (DDL broadcast) are fire-and-forget.
func (c *Coordinator) respond(req queryRequest, resp queryResponse) {
	if req.ID == 0 {
		return
	}
	if err := c.link.Send(req.Origin, internode.KindQueryResponse, encodeQueryResponse(resp)); err != nil {
		log.Printf("coordinator: response to %s failed: %v", req.Origin, err)
	}
}

// handleQueryResponse counts one replica's answer against its open handle.
// Responses for handles that already resolved or timed out miss the lookup
// and are dropped.
func (c *Coordinator) handleQueryResponse(from string, body []byte) {
	resp, err := decodeQueryResponse(body)
	if err != nil {
		log.Printf("coordinator: bad query response from %s: %v", from, err)
		return
	}
	if !resp.OK && resp.Error != "" {
		log.Printf("coordinator: replica error for query %d: %s", resp.ID, resp.Error)
	}
	c.queries.recordAck(resp.ID, resp.OK, resp.Columns, resp.Rows)
}

// --- membership wiring ---

// OnEndpointChange is the callback the gossip layer drives: it keeps the
// partitioner in step with membership. New Normal peers get a token, Dead
// and Removing peers lose theirs.
func (c *Coordinator) OnEndpointChange(addr string, oldStatus, newStatus types.NodeStatus) {
	if addr == c.selfAddr {
		return
	}
	switch newStatus {
	case types.StatusNormal, types.StatusBootstrap, types.StatusLeaving:
		if !c.ring.Contains(addr) {
			if err := c.ring.AddNode(addr); err != nil && !errors.Is(err, partitioner.ErrNodeAlreadyExists) {
				log.Printf("coordinator: adding %s to ring: %v", addr, err)
			} else {
				log.Printf("coordinator: %s joined the ring (%s)", addr, newStatus)
			}
		}
	case types.StatusDead, types.StatusRemoving:
		if c.ring.Contains(addr) {
			if err := c.ring.RemoveNode(addr); err != nil && !errors.Is(err, partitioner.ErrNodeNotFound) {
				log.Printf("coordinator: removing %s from ring: %v", addr, err)
			} else {
				log.Printf("coordinator: %s left the ring (%s)", addr, newStatus)
			}
			c.link.RemovePeer(addr)
		}
	}
}
