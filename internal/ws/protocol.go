package ws

import (
	"encoding/json"

	"github.com/dirsync/server/internal/snapshot"
)

type MessageType string

const (
	MsgSubmission MessageType = "submission"
	MsgDelta      MessageType = "delta"
	MsgError      MessageType = "error"
)

// Message is the envelope for every frame on a session, exactly one per
// WebSocket text frame. Seq is stamped by the broadcaster on outbound deltas
// and is zero on everything else.
type Message struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubmissionPayload carries an observer's capture of the watched directory.
type SubmissionPayload struct {
	Records []snapshot.FileRecord `json:"records"`
}

// DeltaPayload carries the changes computed from one accepted submission,
// keyed by the three change categories.
type DeltaPayload struct {
	Added    []snapshot.FileRecord `json:"added,omitempty"`
	Removed  []snapshot.FileRecord `json:"removed,omitempty"`
	Modified []snapshot.FileRecord `json:"modified,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode wraps payload in a Message envelope and marshals the whole frame.
func Encode(typ MessageType, seq uint64, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Seq: seq, Payload: raw})
}
