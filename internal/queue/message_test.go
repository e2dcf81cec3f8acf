package queue

import (
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		DocumentID: "doc-123",
		RequestID:  "request-456",
		Reanalyze:  true,
		EnqueuedAt: "2026-01-30T22:00:00Z",
		Version:    MessageVersion,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestNewMessageStampsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	msg := NewMessage("doc-1", "req-1", false, time.Date(2026, 3, 1, 12, 0, 0, 0, loc))
	if msg.EnqueuedAt != "2026-03-01T10:00:00Z" {
		t.Fatalf("unexpected enqueuedAt %q", msg.EnqueuedAt)
	}
	if msg.Version != MessageVersion || msg.Reanalyze {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestDecodeMessageWithoutReanalyze(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"documentId":"doc-9","requestId":"r","enqueuedAt":"x","version":2}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.DocumentID != "doc-9" || got.Reanalyze {
		t.Fatalf("unexpected message %+v", got)
	}
}
