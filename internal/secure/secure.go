package secure

import (
	"context"
	"fmt"
	"sync"

	"tootline/internal/domain"
)

// Storage keys. All four are cleared together on sign-out.
const (
	KeyInstanceDomain = "instance_domain"
	KeyClientID       = "client_id"
	KeyClientSecret   = "client_secret"
	KeyAccessToken    = "access_token"
)

// Keys lists every key the client writes.
var Keys = []string{KeyInstanceDomain, KeyClientID, KeyClientSecret, KeyAccessToken}

// Store persists opaque secrets. Flush clears every key atomically.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Flush(ctx context.Context) error
}

// LoadCredentials reads the four credential keys. Missing keys stay empty.
func LoadCredentials(ctx context.Context, s Store) (domain.Credentials, error) {
	var c domain.Credentials
	fields := map[string]*string{
		KeyInstanceDomain: &c.InstanceDomain,
		KeyClientID:       &c.ClientID,
		KeyClientSecret:   &c.ClientSecret,
		KeyAccessToken:    &c.AccessToken,
	}
	for _, key := range Keys {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("read %s: %w", key, err)
		}
		if ok {
			*fields[key] = v
		}
	}
	return c, nil
}

// Memory is an in-process store, used by tests and `--storage memory`.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string]string{}
	return nil
}

// Len reports how many keys are set.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
	_ Store = SQLite{}
)
