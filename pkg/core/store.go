package core

import "context"

// AuthorizationCode represents an OAuth 2.0 authorization code and its associated metadata.
type AuthorizationCode struct {
	Code                string `json:"code"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	State               string `json:"state,omitempty"`
	Scope               string `json:"scope,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	ExpiresAt           int64  `json:"expires_at"`
	CreatedAt           int64  `json:"created_at"`
}

// Client represents an OAuth 2.0 client application.
type Client struct {
	ID              string   `json:"client_id"`
	Secret          string   `json:"client_secret,omitempty"`
	Name            string   `json:"client_name,omitempty"`
	RedirectURIs    []string `json:"redirect_uris"`
	GrantTypes      []string `json:"grant_types"`
	ResponseTypes   []string `json:"response_types"`
	TokenAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope           string   `json:"scope"`
	CreatedAt       int64    `json:"created_at"`
	Active          bool     `json:"active"`
}

// Sanitized returns a copy of the client with the secret removed,
// safe for listing endpoints.
func (c *Client) Sanitized() *Client {
	cp := *c
	cp.Secret = ""
	return &cp
}

// Store defines the interface for persisting authorization codes and
// registered clients.
type Store interface {
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeAuthorizationCode atomically retrieves and removes the code,
	// so each code can be redeemed at most once.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// SweepExpiredCodes removes codes whose expiry has passed and reports
	// how many were dropped.
	SweepExpiredCodes(ctx context.Context) (int, error)

	GetClient(ctx context.Context, clientID string) (*Client, error)
	CreateClient(ctx context.Context, client *Client) error
	ListClients(ctx context.Context) ([]*Client, error)
}
