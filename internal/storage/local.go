// Package storage keeps the raw bytes of uploaded BOM files so remap can
// re-decode the original file without a re-upload.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Metadata describes a stored upload.
type Metadata struct {
	OriginalName string    `json:"originalName,omitempty"`
	ContentType  string    `json:"contentType,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt,omitempty"`
}

// Blobs is the upload blob capability.
type Blobs interface {
	// Put stores content at key with optional metadata, replacing any
	// previous content.
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every blob under the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Local implements Blobs on the local filesystem.
type Local struct {
	basePath string
}

// NewLocal creates a filesystem blob store rooted at basePath.
func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &Local{basePath: basePath}, nil
}

// Put stores content at the given key with optional metadata
func (s *Local) Put(ctx context.Context, key string, content []byte, metadata *Metadata) error {
	fullPath := s.keyToPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}

	if metadata != nil {
		metaBytes, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := os.WriteFile(fullPath+".meta", metaBytes, 0644); err != nil {
			return fmt.Errorf("failed to write metadata for %s: %w", key, err)
		}
	}

	return nil
}

// Get retrieves content from the given key
func (s *Local) Get(ctx context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(s.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", key, err)
	}
	return content, nil
}

// List returns all keys matching the given prefix
func (s *Local) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".meta") {
			return nil
		}

		key := s.pathToKey(path)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return keys, nil
}

// DeletePrefix removes every blob (and metadata sidecar) under prefix.
func (s *Local) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fullPath := s.keyToPath(key)
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		_ = os.Remove(fullPath + ".meta")
	}
	return nil
}

// BuildUploadKey builds the storage key for a session's uploaded BOM file.
func BuildUploadKey(sessionID, filename string) string {
	return fmt.Sprintf("uploads/%s/%s", sessionID, filepath.Base(filename))
}

// UploadPrefix returns the key prefix holding a session's uploads.
func UploadPrefix(sessionID string) string {
	return fmt.Sprintf("uploads/%s/", sessionID)
}

// keyToPath converts a storage key to a filesystem path
func (s *Local) keyToPath(key string) string {
	cleanKey := filepath.Clean(key)
	cleanKey = strings.TrimPrefix(cleanKey, "/")
	cleanKey = strings.TrimPrefix(cleanKey, "\\")
	return filepath.Join(s.basePath, cleanKey)
}

// pathToKey converts a filesystem path to a storage key
func (s *Local) pathToKey(path string) string {
	relPath, err := filepath.Rel(s.basePath, path)
	if err != nil {
		return path
	}
	return strings.ReplaceAll(relPath, "\\", "/")
}
