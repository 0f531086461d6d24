package reconcile

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// Patch is one row of a change set as sent by the client. A field that is
// absent from the map was not sent; a present field may hold JSON null.
type Patch map[string]json.RawMessage

// Lookup returns the raw value of a sent field.
func (p Patch) Lookup(name string) (json.RawMessage, bool) {
	raw, ok := p[name]
	return raw, ok
}

// PhantomID is the client's temporary id for a row it created, or "".
func (p Patch) PhantomID() string {
	for _, name := range []string{"$PhantomId", "phantomId"} {
		raw, ok := p[name]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(string(raw))
	}
	return ""
}

// ChangeSet holds one collection's edits.
type ChangeSet struct {
	Added   []Patch `json:"added"`
	Updated []Patch `json:"updated"`
	Removed []Patch `json:"removed"`
}

// SyncRequest is a batch of change sets keyed by collection name.
type SyncRequest struct {
	// RequestID is echoed back verbatim.
	RequestID json.RawMessage
	// Revision is the client's last known revision; informational only.
	Revision *int64
	Changes  map[string]json.RawMessage
}

// UnmarshalJSON splits the envelope fields from the per-collection change
// sets. Change sets are decoded against the backend later.
func (r *SyncRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return malformed("%v", err)
	}
	if raw == nil {
		return malformed("request body must be an object")
	}
	r.Changes = make(map[string]json.RawMessage, len(raw))
	for name, value := range raw {
		switch name {
		case "requestId":
			if !isNull(value) {
				r.RequestID = value
			}
		case "revision":
			if n, err := strconv.ParseInt(string(bytes.TrimSpace(value)), 10, 64); err == nil {
				r.Revision = &n
			}
		case "type":
		default:
			r.Changes[name] = value
		}
	}
	return nil
}

// ParseSyncRequest decodes a sync request body.
func ParseSyncRequest(data []byte) (*SyncRequest, error) {
	req := &SyncRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, malformed("%v", err)
	}
	return req, nil
}

// Mapping tells the client which key replaced one of its phantom ids.
type Mapping struct {
	PhantomID string    `json:"$PhantomId"`
	ID        store.Key `json:"id"`
}

// SyncResponse is the result envelope of a sync request.
type SyncResponse struct {
	Success   bool
	RequestID json.RawMessage
	Message   string
	Revision  *int64
	// Rows holds the id mappings of collections that created phantom rows.
	Rows map[string][]Mapping
}

// Failure is the envelope returned when a sync aborts.
func Failure(requestID json.RawMessage) *SyncResponse {
	return &SyncResponse{Success: false, RequestID: requestID, Message: SyncFailedMessage}
}

func (r SyncResponse) MarshalJSON() ([]byte, error) {
	out := map[string]any{"success": r.Success}
	if len(r.RequestID) > 0 {
		out["requestId"] = r.RequestID
	}
	if r.Message != "" {
		out["message"] = r.Message
	}
	if r.Revision != nil {
		out["revision"] = *r.Revision
	}
	for name, rows := range r.Rows {
		if len(rows) == 0 {
			continue
		}
		out[name] = map[string]any{"rows": rows}
	}
	return json.Marshal(out)
}

// Block is the snapshot of one collection.
type Block struct {
	Collection string
	Rows       []map[string]any
	// Total is set for backends that report row counts.
	Total *int
}

// Snapshot is the full contents of a backend, as returned by Load.
type Snapshot struct {
	RequestID json.RawMessage
	Revision  *int64
	Blocks    []Block
}

// Rows returns the rows of one collection.
func (s Snapshot) Rows(collection string) []map[string]any {
	for _, b := range s.Blocks {
		if b.Collection == collection {
			return b.Rows
		}
	}
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := map[string]any{"success": true}
	if len(s.RequestID) > 0 {
		out["requestId"] = s.RequestID
	}
	if s.Revision != nil {
		out["revision"] = *s.Revision
	}
	for _, b := range s.Blocks {
		block := map[string]any{"rows": b.Rows}
		if b.Total != nil {
			block["total"] = *b.Total
		}
		out[b.Collection] = block
	}
	return json.Marshal(out)
}
