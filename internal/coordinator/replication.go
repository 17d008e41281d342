package coordinator

import "github.com/mini-cassandra/mini-cassandra/pkg/types"

// replicationFactor returns the RF of the keyspace.
func (c *Coordinator) replicationFactor(ksName string) (int, error) {
	ks, err := c.catalog.Keyspace(ksName)
	if err != nil {
		return 0, err
	}
	return ks.ReplicationFactor, nil
}

// isLive reports whether addr can execute requests right now: this node
// always can, a peer only when gossip last saw it Normal. Bootstrap,
// Leaving, Removing and Dead peers are all skipped for reads and writes.
func (c *Coordinator) isLive(addr string) bool {
	if addr == c.selfAddr {
		return true
	}
	st, known := c.membership.Get(addr)
	return known && st.Status == types.StatusNormal
}

// liveCount counts the placement-list members able to serve.
func (c *Coordinator) liveCount(placement []string) int {
	live := 0
	for _, addr := range placement {
		if c.isLive(addr) {
			live++
		}
	}
	return live
}
