package kvstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// File is a Store keeping one file per key under a base directory. Keys are
// URL-escaped into file names so separators and colons round-trip.
type File struct {
	basePath string
}

// NewFile creates a file-backed store rooted at basePath.
func NewFile(basePath string) (*File, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session store directory %s: %w", basePath, err)
	}
	return &File{basePath: basePath}, nil
}

// Get returns the value for key.
func (f *File) Get(ctx context.Context, key string) (string, bool) {
	content, err := os.ReadFile(f.keyToPath(key))
	if err != nil {
		return "", false
	}
	return string(content), true
}

// Set writes value under key. Write failures are logged and reported as
// false, never raised.
func (f *File) Set(ctx context.Context, key, value string) bool {
	if err := os.WriteFile(f.keyToPath(key), []byte(value), 0644); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("session store write failed")
		return false
	}
	return true
}

// Delete removes the file for key.
func (f *File) Delete(ctx context.Context, key string) error {
	if err := os.Remove(f.keyToPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// List returns sorted keys with the given prefix.
func (f *File) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list session store: %w", err)
	}

	keys := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, err := url.QueryUnescape(entry.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *File) keyToPath(key string) string {
	return filepath.Join(f.basePath, url.QueryEscape(key))
}
