package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type statusResponse struct {
	NodeID      string `json:"node_id"`
	HostID      string `json:"host_id"`
	Address     string `json:"address"`
	Uptime      string `json:"uptime"`
	RingSize    int    `json:"ring_size"`
	Keyspaces   int    `json:"keyspaces"`
	OpenQueries int    `json:"open_queries"`
}

type tokenInfo struct {
	Token string `json:"token"`
	Node  string `json:"node"`
}

type peerInfo struct {
	Address    string `json:"address"`
	Status     string `json:"status"`
	Generation uint64 `json:"generation"`
	Version    uint64 `json:"version"`
}

type columnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type tableInfo struct {
	Name           string       `json:"name"`
	Columns        []columnInfo `json:"columns"`
	PartitionKeys  []string     `json:"partition_keys"`
	ClusteringCols []string     `json:"clustering_columns,omitempty"`
}

type keyspaceInfo struct {
	Name              string      `json:"name"`
	ReplicationClass  string      `json:"replication_class"`
	ReplicationFactor int         `json:"replication_factor"`
	Tables            []tableInfo `json:"tables"`
}

// handleHealth returns the health status of the node.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"node":   s.config.NodeID,
	})
}

// handleStatus returns the node status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := statusResponse{
		NodeID:      s.config.NodeID,
		HostID:      s.hostID.String(),
		Address:     s.config.InternodeAddress(),
		Uptime:      formatUptime(s.Uptime()),
		RingSize:    s.ring.Size(),
		Keyspaces:   len(s.coordinator.Catalog().Keyspaces()),
		OpenQueries: s.coordinator.OpenQueries(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRing returns every token on the ring and its owner.
func (s *Server) handleRing(w http.ResponseWriter, r *http.Request) {
	nodes := s.ring.Nodes()
	tokens := make([]tokenInfo, 0, len(nodes))
	for _, addr := range nodes {
		token, _ := s.ring.TokenOf(addr)
		tokens = append(tokens, tokenInfo{Token: strconv.FormatUint(token, 10), Node: addr})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// handleSchema returns the keyspaces and tables this node knows.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	keyspaces := s.coordinator.Catalog().Keyspaces()
	out := make([]keyspaceInfo, 0, len(keyspaces))
	for _, ks := range keyspaces {
		info := keyspaceInfo{
			Name:              ks.Name,
			ReplicationClass:  string(ks.ReplicationClass),
			ReplicationFactor: ks.ReplicationFactor,
			Tables:            []tableInfo{},
		}
		for _, t := range ks.Tables() {
			ti := tableInfo{
				Name:           t.Name,
				PartitionKeys:  t.PartitionKeys,
				ClusteringCols: t.ClusteringCols,
			}
			for _, c := range t.Columns {
				ti.Columns = append(ti.Columns, columnInfo{Name: c.Name, Type: c.Type.String()})
			}
			info.Tables = append(info.Tables, ti)
		}
		out = append(out, info)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"keyspaces": out,
		"count":     len(out),
	})
}

// handlePeers returns the gossip view of every known endpoint.
func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	states := s.membership.All()
	peers := make([]peerInfo, 0, len(states))
	for addr, st := range states {
		peers = append(peers, peerInfo{
			Address:    addr,
			Status:     st.Status.String(),
			Generation: st.Generation,
			Version:    st.Version,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"peers": peers,
		"count": len(peers),
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// formatUptime renders a duration the way operators read it.
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
