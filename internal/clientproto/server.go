// Package clientproto is the node's Cassandra-wire client surface: a TCP
// listener speaking the native protocol's frame format via the datastax
// codec, dispatching each Query body to the coordinator and translating its
// results and errors back into protocol messages.
package clientproto

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"runtime/debug"
	"sync"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"

	"github.com/mini-cassandra/mini-cassandra/internal/config"
	"github.com/mini-cassandra/mini-cassandra/internal/coordinator"
	"github.com/mini-cassandra/mini-cassandra/internal/schema"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// QueryExecutor is the slice of the coordinator this listener needs: run a
// statement for a session, and expose the schema for result metadata.
type QueryExecutor interface {
	Execute(session *coordinator.Session, cqlText string, consistency types.ConsistencyLevel) (*coordinator.Result, error)
	Catalog() *schema.Catalog
}

// Server accepts client connections and runs the startup handshake plus
// query loop for each, one goroutine per connection.
type Server struct {
	cfg   *config.Config
	exec  QueryExecutor
	codec frame.Codec

	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a client protocol server; call Start to begin listening.
func NewServer(cfg *config.Config, exec QueryExecutor) *Server {
	return &Server{
		cfg:    cfg,
		exec:   exec,
		codec:  frame.NewCodec(),
		stopCh: make(chan struct{}),
	}
}

// Start begins accepting client connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ClientAddress())
	if err != nil {
		return fmt.Errorf("clientproto: listen on %s: %w", s.cfg.ClientAddress(), err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	log.Printf("client listener on %s", s.cfg.ClientAddress())
	return nil
}

// Stop closes the listener and every client connection, then waits for the
// connection goroutines to exit; a request already executing runs to
// completion but its reply is not delivered.
func (s *Server) Stop() {
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				log.Printf("clientproto: accept error: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-s.stopCh:
					conn.Close()
				case <-done:
				}
			}()
			s.HandleConn(conn)
		}()
	}
}

// HandleConn runs the protocol loop for one client connection. Exported so
// tests can drive it over an in-memory pipe.
func (s *Server) HandleConn(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("clientproto: panic serving %s: %v\n%s", conn.RemoteAddr(), r, debug.Stack())
		}
	}()

	session := &coordinator.Session{}
	startupDone := false

	for {
		f, err := s.codec.DecodeFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("clientproto: frame decode from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		var reply message.Message
		switch msg := f.Body.Message.(type) {
		case *message.Options:
			reply = &message.Supported{Options: map[string][]string{
				"CQL_VERSION": {"3.0.0"},
				"COMPRESSION": {},
			}}

		case *message.Startup:
			startupDone = true
			reply = &message.Ready{}

		case *message.Register:
			// event subscriptions are accepted but nothing is pushed
			reply = &message.Ready{}

		case *message.Query:
			if !startupDone {
				reply = &message.ProtocolError{ErrorMessage: "QUERY before STARTUP"}
				break
			}
			reply = s.runQuery(session, msg)

		case *message.Prepare, *message.Execute:
			reply = &message.ProtocolError{ErrorMessage: "prepared statements are not supported"}

		default:
			reply = &message.ProtocolError{ErrorMessage: fmt.Sprintf("unexpected opcode %v", f.Header.OpCode)}
		}

		out := frame.NewFrame(f.Header.Version, f.Header.StreamId, reply)
		if err := s.codec.EncodeFrame(out, conn); err != nil {
			log.Printf("clientproto: frame encode to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// runQuery executes one Query message and shapes the reply body.
func (s *Server) runQuery(session *coordinator.Session, msg *message.Query) message.Message {
	consistency := types.ConsistencyOne
	if msg.Options != nil {
		consistency = consistencyFromWire(msg.Options.Consistency)
	}

	res, err := s.exec.Execute(session, msg.Query, consistency)
	if err != nil {
		return errorMessage(err, consistency)
	}

	switch res.Kind {
	case coordinator.ResultVoid:
		return &message.VoidResult{}
	case coordinator.ResultRows:
		return rowsMessage(s.exec.Catalog(), res)
	case coordinator.ResultSetKeyspace:
		return &message.SetKeyspaceResult{Keyspace: res.Keyspace}
	case coordinator.ResultSchemaChange:
		return schemaChangeMessage(res.Change)
	default:
		return &message.ServerError{ErrorMessage: "coordinator returned an unknown result kind"}
	}
}
