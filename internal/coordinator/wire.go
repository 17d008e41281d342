package coordinator

import (
	"encoding/json"

	"github.com/mini-cassandra/mini-cassandra/internal/storage"
)

// queryRequest is the body of a KindQueryRequest internode frame: the
// statement serialized once at the originating coordinator, tagged with its
// open-query id and origin address so the executing peer can answer.
// Statements travel as CQL text: every node runs the same parser, and the
// text form is already the canonical serialization the client handed us.
type queryRequest struct {
	ID       uint32 `json:"id"`
	Origin   string `json:"origin"`
	Keyspace string `json:"keyspace"`
	CQL      string `json:"cql"`

	// IsReplication tells the target which on-disk namespace to execute
	// against: false for the partition's primary owner, true for a replica.
	IsReplication bool `json:"is_replication"`
}

// queryResponse is the body of a KindQueryResponse internode frame.
type queryResponse struct {
	ID    uint32 `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	// set for successful reads only
	Columns []string      `json:"columns,omitempty"`
	Rows    []storage.Row `json:"rows,omitempty"`
}

func encodeQueryRequest(req queryRequest) []byte {
	body, _ := json.Marshal(req)
	return body
}

func decodeQueryRequest(body []byte) (queryRequest, error) {
	var req queryRequest
	err := json.Unmarshal(body, &req)
	return req, err
}

func encodeQueryResponse(resp queryResponse) []byte {
	body, _ := json.Marshal(resp)
	return body
}

func decodeQueryResponse(body []byte) (queryResponse, error) {
	var resp queryResponse
	err := json.Unmarshal(body, &resp)
	return resp, err
}
