package queue

import (
	"testing"
	"time"
)

func TestNewMessageStampsVersionAndTime(t *testing.T) {
	msg := NewMessage("analysis-123", "request-456")
	if msg.Version != MessageVersion {
		t.Fatalf("expected version %d, got %d", MessageVersion, msg.Version)
	}
	if _, err := time.Parse(time.RFC3339, msg.EnqueuedAt); err != nil {
		t.Fatalf("EnqueuedAt not RFC3339: %q", msg.EnqueuedAt)
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got != msg {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
