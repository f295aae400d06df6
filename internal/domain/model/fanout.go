package model

import (
	"encoding/json"
	"time"
)

// WorkItem is one element of a logical request before it is split per target.
type WorkItem struct {
	// Key identifies the item inside its parent request (document id, patient id, row number).
	Key string `json:"key"`
	// Payload is forwarded untouched to the target.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Target identifies an external party able to serve items.
type Target struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

// FanoutRequest is one bounded-size request addressed to one target.
type FanoutRequest struct {
	ParentRequestID string     `json:"parent_request_id"`
	RequestChunkID  string     `json:"request_chunk_id"`
	Target          Target     `json:"target"`
	Items           []WorkItem `json:"items"`
}

// InvalidItem is an item excluded from a plan, reported so the caller can alert.
type InvalidItem struct {
	Item   WorkItem `json:"item"`
	Index  int      `json:"index"`
	Reason string   `json:"reason"`
}

// ResultRecord is one outcome persisted by a worker or gateway for a correlation id.
type ResultRecord struct {
	ID             string          `json:"id"               db:"id"`
	RequestID      string          `json:"request_id"       db:"request_id"`
	TargetID       string          `json:"target_id"        db:"target_id"`
	RequestChunkID string          `json:"request_chunk_id" db:"request_chunk_id"`
	Status         string          `json:"status"           db:"status"`
	Payload        json.RawMessage `json:"payload"          db:"payload"`
	CreatedAt      time.Time       `json:"created_at"       db:"created_at"`
}

// AuthorityKey is the identity under which duplicates collapse at read time.
func (r ResultRecord) AuthorityKey() string {
	return r.TargetID + "\x00" + r.RequestChunkID
}
