package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore hands out fake URLs and remembers the keys it signed. Local runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	base   string
	expiry time.Duration
	signed map[string]time.Time
}

func NewMemory(base string, expiry time.Duration) *MemoryStore {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &MemoryStore{
		base:   strings.TrimSuffix(base, "/"),
		expiry: expiry,
		signed: make(map[string]time.Time),
	}
}

func (m *MemoryStore) PresignUpload(ctx context.Context, key, contentType string) (*Upload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("object key is required")
	}
	expires := time.Now().UTC().Add(m.expiry)

	m.mu.Lock()
	m.signed[key] = expires
	m.mu.Unlock()

	return &Upload{
		Key:         key,
		UploadURL:   fmt.Sprintf("%s/%s?signature=upload&expires=%d", m.base, key, expires.Unix()),
		ObjectURL:   m.base + "/" + key,
		ContentType: contentType,
		ExpiresAt:   expires,
	}, nil
}

func (m *MemoryStore) PresignDownload(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s?signature=download", m.base, key), nil
}

// Signed reports whether an upload URL was issued for key.
func (m *MemoryStore) Signed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.signed[key]
	return ok
}
