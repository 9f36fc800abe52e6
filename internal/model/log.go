package model

import (
	"encoding/json"
	"time"
)

// IngestSource identifies which ingestion path delivered a log.
type IngestSource string

const (
	SourcePush IngestSource = "push"
	SourcePull IngestSource = "pull"
)

// RawLog is the normalized representation of a chain log shared by the
// webhook and scanner ingestion paths.
type RawLog struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
}

// Topic0 returns the event signature topic, or "" when absent.
func (l RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return l.Topics[0]
}

// LogKey is the natural unique key of a processed log.
type LogKey struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
}

// ProcessedLog records that a log was seen, what it decoded to, and whether
// processing failed. At most one row exists per LogKey.
type ProcessedLog struct {
	ID          int64             `json:"id"`
	LogKey      LogKey            `json:"log_key"`
	Address     string            `json:"address"`
	TopicHash   string            `json:"topic_hash,omitempty"`
	EventName   string            `json:"event_name"`
	Params      map[string]string `json:"params,omitempty"`
	IsError     bool              `json:"is_error"`
	Source      IngestSource      `json:"source"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// ProcessedLogError is one failed processing attempt for a log. Rows for a
// log are deleted once a retry of that log succeeds.
type ProcessedLogError struct {
	ID         int64     `json:"id"`
	LogID      int64     `json:"log_id"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Stack      string    `json:"stack,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ParamsJSON renders the decoded parameter map for storage.
func (p ProcessedLog) ParamsJSON() ([]byte, error) {
	if p.Params == nil {
		return nil, nil
	}
	return json.Marshal(p.Params)
}
