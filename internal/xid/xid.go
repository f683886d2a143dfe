package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns an opaque entity identifier with the given prefix.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// Numbered returns a human-readable document number such as
// REC-20260115-9F3A21BC. Collisions within a day are possible in
// principle, so callers persisting these numbers under a unique
// constraint retry with a fresh number on conflict.
func Numbered(prefix string, at time.Time) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), strings.ToUpper(raw[:8]))
}
