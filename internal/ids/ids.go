package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// lineagePrefix namespaces refresh-token lineage ids so they can never be
// mistaken for a row id in audit trails.
const lineagePrefix = "lin_"

// New returns a lexicographically sortable identifier used for storage keys
// (users, OTP rows, refresh tokens).
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewLineage returns an identifier for a refresh-token lineage.
func NewLineage() string {
	return lineagePrefix + New()
}

// IsLineage reports whether id names a lineage rather than a single row.
func IsLineage(id string) bool {
	return len(id) > len(lineagePrefix) && id[:len(lineagePrefix)] == lineagePrefix
}
