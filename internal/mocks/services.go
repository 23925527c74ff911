package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/capiorg/backend-auth/internal/cache"
	"github.com/capiorg/backend-auth/internal/geo"
)

// MockSender records delivered codes
type MockSender struct {
	mu    sync.Mutex
	Sent  map[string][]string
	Error error
}

func NewMockSender() *MockSender {
	return &MockSender{Sent: map[string][]string{}}
}

func (m *MockSender) SendCode(_ context.Context, phone, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return m.Error
	}
	m.Sent[phone] = append(m.Sent[phone], code)
	return nil
}

// LastCode returns the most recent code sent to phone
func (m *MockSender) LastCode(phone string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.Sent[phone]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

// MockLocator returns a fixed location
type MockLocator struct {
	Location geo.Location
	Error    error
}

func (m *MockLocator) Locate(context.Context, string) (geo.Location, error) {
	return m.Location, m.Error
}

// MockCache is an in-memory cache.Cache. Patterns support a trailing '*'.
type MockCache struct {
	mu              sync.Mutex
	data            map[string][]byte
	Invalidated     []string
	GetError        error
	InvalidateError error
}

func NewMockCache() *MockCache {
	return &MockCache{data: map[string][]byte{}}
}

func (m *MockCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *MockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCache) InvalidatePattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, pattern)
	if m.InvalidateError != nil {
		return m.InvalidateError
	}
	prefix, glob := strings.CutSuffix(pattern, "*")
	for k := range m.data {
		if k == pattern || (glob && strings.HasPrefix(k, prefix)) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MockCache) Ping(context.Context) error { return nil }
func (m *MockCache) Close() error { return nil }

// Has reports whether key is cached
func (m *MockCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// Patterns returns a copy of the invalidated patterns
func (m *MockCache) Patterns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Invalidated...)
}
