package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bi-tools/weather-mcp/pkg/core"
)

var (
	// ErrCodeNotFound is returned when an authorization code is not found in the store.
	ErrCodeNotFound = errors.New("authorization code not found")
	// ErrNilAuthorizationCode is returned when attempting to save a nil authorization code.
	ErrNilAuthorizationCode = errors.New("authorization code cannot be nil")
	// ErrEmptyCode is returned when the authorization code string is empty.
	ErrEmptyCode = errors.New("authorization code string cannot be empty")
	// ErrClientNotFound is returned when a client is not found in the store.
	ErrClientNotFound = errors.New("client not found")
	// ErrNilClient is returned when attempting to save a nil client.
	ErrNilClient = errors.New("client cannot be nil")
	// ErrEmptyClientID is returned when the client ID string is empty.
	ErrEmptyClientID = errors.New("client ID cannot be empty")
)

// MemoryStore implements the core.Store interface using in-memory maps.
// It provides thread-safe storage for authorization codes and clients.
type MemoryStore struct {
	mu      sync.RWMutex
	codes   map[string]*core.AuthorizationCode
	clients map[string]*core.Client
}

// NewMemoryStore creates a new instance of MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:   make(map[string]*core.AuthorizationCode),
		clients: make(map[string]*core.Client),
	}
}

// SaveAuthorizationCode stores an authorization code in memory.
// It returns an error if the code is nil or the code string is empty.
func (m *MemoryStore) SaveAuthorizationCode(ctx context.Context, code *core.AuthorizationCode) error {
	if code == nil {
		return ErrNilAuthorizationCode
	}
	if code.Code == "" {
		return ErrEmptyCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.codes[code.Code] = code
	return nil
}

// ConsumeAuthorizationCode retrieves an authorization code and removes it
// under the same lock, so concurrent redemptions of the same code succeed
// at most once. It returns ErrCodeNotFound if the code does not exist or
// was already consumed. Expiry is not checked here; callers decide what an
// expired code means.
func (m *MemoryStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	authCode, exists := m.codes[code]
	if !exists {
		return nil, ErrCodeNotFound
	}
	delete(m.codes, code)

	return authCode, nil
}

// SweepExpiredCodes removes every authorization code whose expiry has passed
// and returns the number of codes dropped.
func (m *MemoryStore) SweepExpiredCodes(ctx context.Context) (int, error) {
	now := time.Now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, authCode := range m.codes {
		if authCode.ExpiresAt <= now {
			delete(m.codes, key)
			removed++
		}
	}
	return removed, nil
}

// GetClient retrieves a client from memory by its client ID.
// It returns ErrClientNotFound if the client does not exist.
func (m *MemoryStore) GetClient(ctx context.Context, clientID string) (*core.Client, error) {
	if clientID == "" {
		return nil, ErrEmptyClientID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil, ErrClientNotFound
	}

	return client, nil
}

// CreateClient stores a new client in memory.
// It returns an error if the client is nil or the client ID is empty.
func (m *MemoryStore) CreateClient(ctx context.Context, client *core.Client) error {
	if client == nil {
		return ErrNilClient
	}
	if client.ID == "" {
		return ErrEmptyClientID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[client.ID] = client
	return nil
}

// ListClients returns all registered clients ordered by creation time,
// oldest first, with the client ID as tie-breaker.
func (m *MemoryStore) ListClients(ctx context.Context) ([]*core.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]*core.Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].CreatedAt != clients[j].CreatedAt {
			return clients[i].CreatedAt < clients[j].CreatedAt
		}
		return clients[i].ID < clients[j].ID
	})
	return clients, nil
}
