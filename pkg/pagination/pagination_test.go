package pagination

import (
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := NormalizeLimit(-5); got != DefaultLimit {
		t.Fatalf("expected default limit for negative input, got %d", got)
	}
	if got := NormalizeLimit(MaxLimit + 100); got != MaxLimit {
		t.Fatalf("expected max limit cap, got %d", got)
	}
	if got := NormalizeLimit(20); got != 20 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}

func TestSeqCursorRoundTrip(t *testing.T) {
	in := SeqCursor{Seq: 42, ID: uuid.New()}
	out, err := ParseSeqCursor(EncodeSeqCursor(in))
	if err != nil {
		t.Fatalf("parse seq cursor: %v", err)
	}
	if out == nil {
		t.Fatal("expected cursor, got nil")
	}
	if out.Seq != in.Seq || out.ID != in.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseSeqCursorRejectsGarbage(t *testing.T) {
	if _, err := ParseSeqCursor("not-base64!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if c, err := ParseSeqCursor("   "); err != nil || c != nil {
		t.Fatalf("blank cursor should be nil/nil, got %v %v", c, err)
	}
}
