package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 50
	// MaxLimit caps how many rows any cursor query can request.
	MaxLimit = 500
)

// SeqCursor represents the cursor for ledger history, which pages by the
// per-key sequence number rather than wall-clock time.
type SeqCursor struct {
	Seq int64
	ID  uuid.UUID
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeSeqCursor builds a base64 cursor string for ledger history pages.
func EncodeSeqCursor(cursor SeqCursor) string {
	payload := fmt.Sprintf("%d|%s", cursor.Seq, cursor.ID.String())
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// ParseSeqCursor decodes a seq cursor string back into its components.
func ParseSeqCursor(value string) (*SeqCursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	seq, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor seq: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &SeqCursor{
		Seq: seq,
		ID:  id,
	}, nil
}
