package gossip

import (
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/mini-cassandra/mini-cassandra/internal/internode"
	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

// synMessage advertises the sender's digest of known endpoints.
type synMessage struct {
	From   string
	Digest []digestEntry
}

// ackMessage replies to a SYN with full states the sender's digest was
// behind on, plus a list of addresses the acker needs fuller state for.
type ackMessage struct {
	From     string
	States   map[string]EndpointState
	Requests []string
}

// ack2Message completes the exchange with the full states the acker asked
// for.
type ack2Message struct {
	From   string
	States map[string]EndpointState
}

// Protocol drives the SYN/ACK/ACK2 exchange on a timer, and applies
// incoming exchanges from other nodes. Digests keep the steady-state
// traffic proportional to cluster size, not state size; full endpoint
// states travel only for entries one side is behind on.
type Protocol struct {
	selfAddr   string
	membership *Membership
	detector   *FailureDetector
	link       *internode.Link
	interval   time.Duration

	mu     sync.Mutex
	seeds  []string
	stopCh chan struct{}
	wg     sync.WaitGroup

	onEndpointChange func(addr string, oldStatus, newStatus types.NodeStatus)
}

// NewProtocol wires a gossip protocol instance to an internode link.
func NewProtocol(selfAddr string, membership *Membership, detector *FailureDetector, link *internode.Link, interval time.Duration) *Protocol {
	p := &Protocol{
		selfAddr:   selfAddr,
		membership: membership,
		detector:   detector,
		link:       link,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
	link.Handle(internode.KindGossipSyn, p.handleSyn)
	link.Handle(internode.KindGossipAck, p.handleAck)
	link.Handle(internode.KindGossipAck2, p.handleAck2)
	return p
}

// seedProbability and deadProbability tune the extra SYN targets each tick:
// a seed keeps partitioned groups converging on a common contact point, a
// dead peer speeds recovery once it comes back.
const (
	seedProbability = 0.3
	deadProbability = 0.2
)

// AddSeed registers a seed address as a gossip target before any exchange
// has happened with it.
func (p *Protocol) AddSeed(addr string) {
	p.membership.Learn(addr)
	p.mu.Lock()
	p.seeds = append(p.seeds, addr)
	p.mu.Unlock()
}

// OnEndpointChange registers the callback fired when an exchange teaches
// this node something new about a peer's status: a newly met peer, or a
// status transition. Set before Start.
func (p *Protocol) OnEndpointChange(fn func(addr string, oldStatus, newStatus types.NodeStatus)) {
	p.onEndpointChange = fn
}

// Start begins the periodic gossip loop.
func (p *Protocol) Start() {
	p.wg.Add(1)
	go p.gossipLoop()
}

// Stop halts the gossip loop.
func (p *Protocol) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Protocol) gossipLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.gossipTick()
		}
	}
}

// gossipTick picks this round's SYN targets: one random known peer, plus
// occasionally a seed and a dead peer.
func (p *Protocol) gossipTick() {
	peers := p.membership.Peers()
	if len(peers) == 0 {
		return
	}

	targets := map[string]bool{peers[rand.Intn(len(peers))]: true}

	p.mu.Lock()
	seeds := p.seeds
	p.mu.Unlock()
	if len(seeds) > 0 && rand.Float64() < seedProbability {
		targets[seeds[rand.Intn(len(seeds))]] = true
	}
	if p.detector != nil {
		if dead := p.detector.DeadNodes(); len(dead) > 0 && rand.Float64() < deadProbability {
			targets[dead[rand.Intn(len(dead))]] = true
		}
	}

	msg := synMessage{From: p.selfAddr, Digest: p.membership.Digest()}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("gossip: failed to marshal syn: %v", err)
		return
	}
	for target := range targets {
		if target == p.selfAddr {
			continue
		}
		if err := p.link.Send(target, internode.KindGossipSyn, body); err != nil {
			log.Printf("gossip: failed to send syn to %s: %v", target, err)
		}
	}
}

func (p *Protocol) handleSyn(from string, body []byte) {
	var msg synMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("gossip: invalid syn from %s: %v", from, err)
		return
	}
	p.detector.RecordActivity(msg.From)

	incoming := make(map[string]digestEntry, len(msg.Digest))
	for _, d := range msg.Digest {
		incoming[d.Addr] = d
	}

	ack := ackMessage{From: p.selfAddr, States: make(map[string]EndpointState)}

	for addr, local := range p.membership.All() {
		their, known := incoming[addr]
		localDigest := EndpointState{Generation: their.Generation, Version: their.Version}
		if !known || local.newerThan(localDigest) {
			ack.States[addr] = local
		}
	}
	for addr, their := range incoming {
		local, known := p.membership.Get(addr)
		theirState := EndpointState{Generation: their.Generation, Version: their.Version}
		if !known || theirState.newerThan(local) {
			ack.Requests = append(ack.Requests, addr)
		}
	}

	out, err := json.Marshal(ack)
	if err != nil {
		log.Printf("gossip: failed to marshal ack: %v", err)
		return
	}
	if err := p.link.Send(msg.From, internode.KindGossipAck, out); err != nil {
		log.Printf("gossip: failed to send ack to %s: %v", msg.From, err)
	}
}

func (p *Protocol) handleAck(from string, body []byte) {
	var msg ackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("gossip: invalid ack from %s: %v", from, err)
		return
	}
	p.detector.RecordActivity(msg.From)
	p.applyStates(msg.States)

	ack2 := ack2Message{From: p.selfAddr, States: make(map[string]EndpointState)}
	for _, addr := range msg.Requests {
		if st, ok := p.membership.Get(addr); ok {
			ack2.States[addr] = st
		}
	}

	out, err := json.Marshal(ack2)
	if err != nil {
		log.Printf("gossip: failed to marshal ack2: %v", err)
		return
	}
	if err := p.link.Send(msg.From, internode.KindGossipAck2, out); err != nil {
		log.Printf("gossip: failed to send ack2 to %s: %v", msg.From, err)
	}
}

func (p *Protocol) handleAck2(from string, body []byte) {
	var msg ack2Message
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("gossip: invalid ack2 from %s: %v", from, err)
		return
	}
	p.detector.RecordActivity(msg.From)
	p.applyStates(msg.States)
}

func (p *Protocol) applyStates(states map[string]EndpointState) {
	for addr, st := range states {
		if addr == p.selfAddr {
			continue
		}
		_, known := p.membership.Get(addr)
		applied, oldStatus := p.membership.Merge(addr, st)
		if applied && p.onEndpointChange != nil && (!known || oldStatus != st.Status) {
			p.onEndpointChange(addr, oldStatus, st.Status)
		}
	}
}
