// Package session defines the per-upload session value object and the
// best-effort persistence gateway that caches it in a key-value store. The
// cache is never the source of truth: that is the uploaded file plus the
// current in-memory mapping, and callers fall back to re-extraction whenever
// the cache is partial.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Letters holds the user-facing column-letter mapping. Frame may be empty.
type Letters struct {
	Pole  string `json:"pole"`
	X     string `json:"x"`
	Y     string `json:"y"`
	Z     string `json:"z"`
	Frame string `json:"frame,omitempty"`
}

// Session is constructed once per upload and threaded explicitly through
// extraction calls. A fresh upload always builds a new Session, which keeps
// a learned start offset from leaking across files.
type Session struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	SheetName   string    `json:"sheetName"`
	TrackerType string    `json:"trackerType,omitempty"`
	Letters     Letters   `json:"letters"`
	StartOffset int       `json:"startOffset"`
	SavedAt     time.Time `json:"savedAt,omitempty"`
}

const keyPrefix = "session:"

func metaKey(id string) string    { return keyPrefix + id + ":meta" }
func lettersKey(id string) string { return keyPrefix + id + ":letters" }
func offsetKey(id string) string  { return keyPrefix + id + ":offset" }
func columnKey(id, slot string) string {
	return fmt.Sprintf("%s%s:columns:%s", keyPrefix, id, slot)
}

// Prefix returns the key prefix holding one session's entries.
func Prefix(id string) string { return keyPrefix + id + ":" }

// AllPrefix is the key prefix spanning every persisted session.
const AllPrefix = keyPrefix

// IDFromMetaKey extracts the session id from a meta key, used when sweeping
// the store.
func IDFromMetaKey(key string) (string, bool) {
	if !strings.HasPrefix(key, keyPrefix) || !strings.HasSuffix(key, ":meta") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), ":meta")
	if id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}
