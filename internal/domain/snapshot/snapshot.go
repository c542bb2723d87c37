// Package snapshot captures configuration state before mutation so a failed
// transition can restore it verbatim.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Snapshot records one subsystem configuration at a point in time.
// The content hash lets Restore verify byte-for-byte fidelity.
type Snapshot struct {
	ID         string
	Subsystem  string
	Hash       string
	Size       int64
	CapturedAt time.Time
}

// New creates a snapshot descriptor for the given subsystem content.
func New(subsystem string, content []byte, capturedAt time.Time) Snapshot {
	return Snapshot{
		ID:         uuid.New().String(),
		Subsystem:  subsystem,
		Hash:       HashContent(content),
		Size:       int64(len(content)),
		CapturedAt: capturedAt,
	}
}

// Matches reports whether content is byte-identical to what was captured.
func (s Snapshot) Matches(content []byte) bool {
	return s.Hash == HashContent(content) && s.Size == int64(len(content))
}

// HashContent returns the hex sha256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
