package engine

import (
	"github.com/google/uuid"
)

// PassIDGenerator generates ids for execution passes. Every log line and
// result of one Execute or Explain call carries the same pass id.
//
// Implemented by UUIDv7Generator (production) and
// testutil.FixedPassIDGenerator (tests).
type PassIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 pass ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
