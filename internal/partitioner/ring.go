// Package partitioner implements the consistent-hash token ring: it maps
// every row to an owning node by hashing its partition key and walking to
// the first node whose token is greater than or equal to the row's token,
// wrapping to the smallest token if none qualifies.
package partitioner

import (
	"errors"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

var (
	ErrNodeAlreadyExists = errors.New("partitioner: node already exists")
	ErrNodeNotFound      = errors.New("partitioner: node not found")
	ErrEmptyRing         = errors.New("partitioner: ring is empty")
)

// token is a position on the ring, owned by exactly one node.
type token struct {
	hash uint64
	addr string
}

// Ring is a consistent-hash token ring with one token per physical node.
type Ring struct {
	mu     sync.RWMutex
	tokens []token          // sorted by hash
	byAddr map[string]uint64 // addr -> its token hash
}

// New creates an empty token ring.
func New() *Ring {
	return &Ring{
		byAddr: make(map[string]uint64),
	}
}

// Hash computes the 64-bit MurmurHash3 of a byte string. Used both for node
// addresses and for the concatenation of a row's partition-key values.
func Hash(b []byte) uint64 {
	h := murmur3.New64()
	h.Write(b)
	return h.Sum64()
}

// AddNode inserts a node into the ring, keyed by the hash of its address.
func (r *Ring) AddNode(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAddr[addr]; exists {
		return ErrNodeAlreadyExists
	}

	h := Hash([]byte(addr))
	for _, t := range r.tokens {
		if t.hash == h {
			return ErrNodeAlreadyExists
		}
	}

	r.tokens = append(r.tokens, token{hash: h, addr: addr})
	sort.Slice(r.tokens, func(i, j int) bool {
		return r.tokens[i].hash < r.tokens[j].hash
	})
	r.byAddr[addr] = h
	return nil
}

// RemoveNode removes a node from the ring.
func (r *Ring) RemoveNode(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.byAddr[addr]
	if !exists {
		return ErrNodeNotFound
	}

	newTokens := make([]token, 0, len(r.tokens)-1)
	for _, t := range r.tokens {
		if t.hash != h {
			newTokens = append(newTokens, t)
		}
	}
	r.tokens = newTokens
	delete(r.byAddr, addr)
	return nil
}

// OwnerOf returns the node owning the given key bytes: the first node whose
// token is >= the key's hash, wrapping to the smallest token if none is.
func (r *Ring) OwnerOf(keyBytes []byte) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tokens) == 0 {
		return "", ErrEmptyRing
	}

	h := Hash(keyBytes)
	idx := sort.Search(len(r.tokens), func(i int) bool {
		return r.tokens[i].hash >= h
	})
	if idx >= len(r.tokens) {
		idx = 0
	}
	return r.tokens[idx].addr, nil
}

// Successors returns the k distinct nodes that follow addr clockwise on the
// ring (used to build the replica placement list). If k is greater than or
// equal to the ring size, it returns every other node in ring order.
func (r *Ring) Successors(addr string, k int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tokens) == 0 {
		return nil, ErrEmptyRing
	}

	startIdx := -1
	for i, t := range r.tokens {
		if t.addr == addr {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil, ErrNodeNotFound
	}

	if k > len(r.tokens)-1 {
		k = len(r.tokens) - 1
	}

	out := make([]string, 0, k)
	for i := 1; i <= len(r.tokens)-1 && len(out) < k; i++ {
		idx := (startIdx + i) % len(r.tokens)
		out = append(out, r.tokens[idx].addr)
	}
	return out, nil
}

// PlacementList returns the ordered list of nodes that should hold a copy of
// the row with this key: the owner first, followed by rf-1 successors.
func (r *Ring) PlacementList(keyBytes []byte, rf int) ([]string, error) {
	owner, err := r.OwnerOf(keyBytes)
	if err != nil {
		return nil, err
	}
	if rf <= 1 {
		return []string{owner}, nil
	}
	successors, err := r.Successors(owner, rf-1)
	if err != nil {
		return nil, err
	}
	return append([]string{owner}, successors...), nil
}

// Contains reports whether addr currently has a token on the ring.
func (r *Ring) Contains(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.byAddr[addr]
	return exists
}

// Nodes returns every physical node currently on the ring, in token order.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.tokens))
	for i, t := range r.tokens {
		out[i] = t.addr
	}
	return out
}

// Size returns the number of nodes on the ring.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// TokenOf returns the token hash assigned to addr, for debug/admin display.
func (r *Ring) TokenOf(addr string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byAddr[addr]
	return h, ok
}
