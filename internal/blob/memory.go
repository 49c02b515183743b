package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	data    map[string][]byte
	types   map[string]string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		data:    make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("blob.MemoryStore.Put: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("blob.MemoryStore.Put: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = buf.Bytes()
	m.types[key] = contentType
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(d))), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return ErrObjectNotFound
	}
	delete(m.data, key)
	delete(m.types, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}

	q := url.Values{"expires": {time.Now().Add(ttl).UTC().Format(time.RFC3339)}}
	return m.baseURL + "/" + key + "?" + q.Encode(), nil
}

// ContentType returns the content type recorded for key.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
