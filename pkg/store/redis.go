package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bi-tools/weather-mcp/pkg/core"
	"github.com/redis/rueidis"
)

const (
	// Key prefixes for Redis storage
	authCodePrefix = "auth_code:"
	clientPrefix   = "client:"

	// scanBatch is the COUNT hint used when scanning client keys.
	scanBatch = 100
)

// RedisStore implements the core.Store interface using Redis via rueidis.
// It provides persistent storage for authorization codes and clients.
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore creates a new instance of RedisStore with the provided rueidis client.
func NewRedisStore(client rueidis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// RedisOptions contains configuration for Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStoreFromOptions creates a new RedisStore with simplified options.
func NewRedisStoreFromOptions(opts RedisOptions) (*RedisStore, error) {
	clientOpts := rueidis.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	}
	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisStore(client), nil
}

// NewRedisStoreFromClientOption creates a new RedisStore with full rueidis client options.
func NewRedisStoreFromClientOption(opts rueidis.ClientOption) (*RedisStore, error) {
	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisStore(client), nil
}

// Close closes the Redis client connection.
func (r *RedisStore) Close() {
	r.client.Close()
}

// SaveAuthorizationCode stores an authorization code in Redis, keyed by the
// code string, with a TTL derived from its expiry.
func (r *RedisStore) SaveAuthorizationCode(ctx context.Context, code *core.AuthorizationCode) error {
	if code == nil {
		return ErrNilAuthorizationCode
	}
	if code.Code == "" {
		return ErrEmptyCode
	}

	// Serialize authorization code to JSON
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	// Calculate TTL based on expiration time
	ttl := time.Until(time.Unix(code.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("authorization code is already expired")
	}

	// Store in Redis with TTL
	key := authCodePrefix + code.Code
	cmd := r.client.B().Set().Key(key).Value(string(data)).ExSeconds(int64(ttl.Seconds())).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save authorization code to redis: %w", err)
	}

	return nil
}

// ConsumeAuthorizationCode retrieves and removes an authorization code in a
// single GETDEL round trip, so concurrent redemptions of the same code
// succeed at most once. It returns ErrCodeNotFound if the code does not
// exist, was already consumed, or was evicted by its TTL.
func (r *RedisStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}

	key := authCodePrefix + code
	cmd := r.client.B().Getdel().Key(key).Build()
	result, err := r.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization code from redis: %w", err)
	}

	var authCode core.AuthorizationCode
	if err := json.Unmarshal([]byte(result), &authCode); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	return &authCode, nil
}

// SweepExpiredCodes is a no-op for Redis: codes are stored with a TTL and
// evicted by the server, so there is never anything to sweep.
func (r *RedisStore) SweepExpiredCodes(ctx context.Context) (int, error) {
	return 0, nil
}

// GetClient retrieves a client from Redis by its client ID.
// It returns ErrClientNotFound if the client does not exist.
// Uses client-side caching with 60 second TTL since clients change infrequently.
func (r *RedisStore) GetClient(ctx context.Context, clientID string) (*core.Client, error) {
	if clientID == "" {
		return nil, ErrEmptyClientID
	}

	key := clientPrefix + clientID
	cmd := r.client.B().Get().Key(key).Cache()
	result, err := r.client.DoCache(ctx, cmd, 60*time.Second).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client from redis: %w", err)
	}

	var client core.Client
	if err := json.Unmarshal([]byte(result), &client); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}

	return &client, nil
}

// CreateClient stores a new client in Redis.
// It returns an error if the client is nil or the client ID is empty.
func (r *RedisStore) CreateClient(ctx context.Context, client *core.Client) error {
	if client == nil {
		return ErrNilClient
	}
	if client.ID == "" {
		return ErrEmptyClientID
	}

	// Serialize client to JSON
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	// Store in Redis (clients don't expire by default)
	key := clientPrefix + client.ID
	cmd := r.client.B().Set().Key(key).Value(string(data)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to create client in redis: %w", err)
	}

	return nil
}

// ListClients scans all client keys and returns the registered clients
// ordered by creation time, oldest first, with the client ID as tie-breaker.
func (r *RedisStore) ListClients(ctx context.Context) ([]*core.Client, error) {
	var clients []*core.Client

	cursor := uint64(0)
	for {
		cmd := r.client.B().Scan().Cursor(cursor).Match(clientPrefix + "*").Count(scanBatch).Build()
		entry, err := r.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan clients in redis: %w", err)
		}

		for _, key := range entry.Elements {
			result, err := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).ToString()
			if err != nil {
				if rueidis.IsRedisNil(err) {
					// Key vanished between SCAN and GET.
					continue
				}
				return nil, fmt.Errorf("failed to get client from redis: %w", err)
			}
			var client core.Client
			if err := json.Unmarshal([]byte(result), &client); err != nil {
				return nil, fmt.Errorf("failed to unmarshal client: %w", err)
			}
			clients = append(clients, &client)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(clients, func(i, j int) bool {
		if clients[i].CreatedAt != clients[j].CreatedAt {
			return clients[i].CreatedAt < clients[j].CreatedAt
		}
		return clients[i].ID < clients[j].ID
	})
	return clients, nil
}
