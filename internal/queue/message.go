package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Client hands analyze jobs to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// MessageVersion is the payload version written by NewMessage.
const MessageVersion = 2

// Message asks a worker to analyze one document.
type Message struct {
	DocumentID string `json:"documentId"`
	RequestID  string `json:"requestId"`
	Reanalyze  bool   `json:"reanalyze,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage builds a current-version message stamped with now.
func NewMessage(documentID, requestID string, reanalyze bool, now time.Time) Message {
	return Message{
		DocumentID: documentID,
		RequestID:  requestID,
		Reanalyze:  reanalyze,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
