// Package gossip implements cluster membership dissemination via a
// three-phase SYN/ACK/ACK2 digest exchange carried over the internode link,
// plus the failure detector that marks silent peers dead.
package gossip

import (
	"sync"

	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// EndpointState is what the cluster gossips about one node: its generation
// (bumped only when the node itself restarts) and a version local to that
// generation (bumped on every local status change), plus the status value
// itself. A state is newer than another if its generation is greater, or its
// generation is equal and its version is greater.
type EndpointState struct {
	Generation uint64
	Version    uint64
	Status     types.NodeStatus
}

func (a EndpointState) newerThan(b EndpointState) bool {
	if a.Generation != b.Generation {
		return a.Generation > b.Generation
	}
	return a.Version > b.Version
}

// digestEntry is the generation/version pair advertised in a SYN, without
// the status payload, so a SYN stays small regardless of cluster size.
type digestEntry struct {
	Addr       string
	Generation uint64
	Version    uint64
}

// Membership is the node-local view of every endpoint's state.
type Membership struct {
	mu       sync.RWMutex
	selfAddr string
	states   map[string]EndpointState
}

// NewMembership creates a membership table seeded with only the local node,
// at the given generation (ordinarily derived from process start time).
func NewMembership(selfAddr string, selfGeneration uint64) *Membership {
	return &Membership{
		selfAddr: selfAddr,
		states: map[string]EndpointState{
			selfAddr: {Generation: selfGeneration, Version: 1, Status: types.StatusNormal},
		},
	}
}

// Self returns the local node's current endpoint state.
func (m *Membership) Self() EndpointState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[m.selfAddr]
}

// SetSelfStatus bumps the local node's version and records a new status,
// used when this node itself starts leaving or bootstrapping.
func (m *Membership) SetSelfStatus(status types.NodeStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	self := m.states[m.selfAddr]
	self.Version++
	self.Status = status
	m.states[m.selfAddr] = self
}

// Get returns the known state for addr, if any.
func (m *Membership) Get(addr string) (EndpointState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[addr]
	return st, ok
}

// Learn registers addr with a placeholder Bootstrap state if it is not
// already known, used to seed the gossip target list before any exchange has
// happened with it.
func (m *Membership) Learn(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[addr]; !ok {
		m.states[addr] = EndpointState{Status: types.StatusBootstrap}
	}
}

// Merge applies an incoming state for addr if it is newer than what is
// already known. Returns whether it was applied and, if applied, the
// previous status (for failure-detector callbacks further up the stack).
func (m *Membership) Merge(addr string, incoming EndpointState) (applied bool, oldStatus types.NodeStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, known := m.states[addr]
	if !known || incoming.newerThan(current) {
		m.states[addr] = incoming
		return true, current.Status
	}
	return false, current.Status
}

// Digest returns the generation/version of every known endpoint, for a SYN.
func (m *Membership) Digest() []digestEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]digestEntry, 0, len(m.states))
	for addr, st := range m.states {
		out = append(out, digestEntry{Addr: addr, Generation: st.Generation, Version: st.Version})
	}
	return out
}

// All returns a snapshot of the full membership table.
func (m *Membership) All() map[string]EndpointState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]EndpointState, len(m.states))
	for addr, st := range m.states {
		out[addr] = st
	}
	return out
}

// Peers returns every known address other than self.
func (m *Membership) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.states))
	for addr := range m.states {
		if addr != m.selfAddr {
			out = append(out, addr)
		}
	}
	return out
}
