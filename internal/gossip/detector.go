package gossip

import (
	"log"
	"sync"
	"time"

	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// FailureDetector monitors per-peer activity timestamps and marks a peer
// Dead when it has not been heard from within the dead timeout, notifying the
// onStateChange callback so the ring can be updated.
type FailureDetector struct {
	mu             sync.RWMutex
	membership     *Membership
	lastSeen       map[string]time.Time
	suspectTimeout time.Duration
	deadTimeout    time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	onStateChange  func(addr string, oldStatus, newStatus types.NodeStatus)
}

// NewFailureDetector creates a failure detector over membership.
func NewFailureDetector(membership *Membership, suspectTimeout, deadTimeout time.Duration,
	onStateChange func(addr string, oldStatus, newStatus types.NodeStatus)) *FailureDetector {
	return &FailureDetector{
		membership:     membership,
		lastSeen:       make(map[string]time.Time),
		suspectTimeout: suspectTimeout,
		deadTimeout:    deadTimeout,
		stopCh:         make(chan struct{}),
		onStateChange:  onStateChange,
	}
}

// Start begins the periodic detection loop.
func (fd *FailureDetector) Start() {
	fd.wg.Add(1)
	go fd.detectionLoop()
}

// Stop halts the detection loop.
func (fd *FailureDetector) Stop() {
	close(fd.stopCh)
	fd.wg.Wait()
}

func (fd *FailureDetector) detectionLoop() {
	defer fd.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-fd.stopCh:
			return
		case <-ticker.C:
			fd.checkPeers()
		}
	}
}

func (fd *FailureDetector) checkPeers() {
	now := time.Now()

	fd.mu.RLock()
	lastSeen := make(map[string]time.Time, len(fd.lastSeen))
	for addr, t := range fd.lastSeen {
		lastSeen[addr] = t
	}
	fd.mu.RUnlock()

	for _, addr := range fd.membership.Peers() {
		seenAt, known := lastSeen[addr]
		if !known {
			continue
		}

		state, ok := fd.membership.Get(addr)
		if !ok {
			continue
		}

		elapsed := now.Sub(seenAt)
		oldStatus := state.Status

		switch state.Status {
		case types.StatusNormal, types.StatusBootstrap:
			if elapsed > fd.deadTimeout {
				fd.transitionTo(addr, state, types.StatusDead)
				log.Printf("gossip: %s has not been heard from for %v, marking dead", addr, elapsed)
			}
		case types.StatusDead:
			// stays dead until a newer gossip state revives it
		}

		if newState, ok := fd.membership.Get(addr); ok && newState.Status != oldStatus && fd.onStateChange != nil {
			fd.onStateChange(addr, oldStatus, newState.Status)
		}
	}
}

func (fd *FailureDetector) transitionTo(addr string, current EndpointState, newStatus types.NodeStatus) {
	current.Version++
	current.Status = newStatus
	fd.membership.Merge(addr, current)
}

// RecordActivity notes that addr was just heard from, resetting its
// failure-detection clock and reviving it if it had been marked dead.
func (fd *FailureDetector) RecordActivity(addr string) {
	fd.mu.Lock()
	fd.lastSeen[addr] = time.Now()
	fd.mu.Unlock()

	state, ok := fd.membership.Get(addr)
	if ok && state.Status == types.StatusDead {
		oldStatus := state.Status
		state.Version++
		state.Status = types.StatusNormal
		if applied, _ := fd.membership.Merge(addr, state); applied {
			log.Printf("gossip: %s revived to normal", addr)
			if fd.onStateChange != nil {
				fd.onStateChange(addr, oldStatus, types.StatusNormal)
			}
		}
	}
}

// DeadNodes returns every peer currently marked Dead.
func (fd *FailureDetector) DeadNodes() []string {
	var dead []string
	for _, addr := range fd.membership.Peers() {
		if st, ok := fd.membership.Get(addr); ok && st.Status == types.StatusDead {
			dead = append(dead, addr)
		}
	}
	return dead
}
