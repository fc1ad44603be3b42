package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bi-tools/weather-mcp/pkg/core"
	"github.com/bi-tools/weather-mcp/pkg/store"

	"github.com/google/uuid"
)

const (
	// codeTTL is how long an authorization code stays redeemable.
	codeTTL = 10 * time.Minute
	// tokenExpiresIn is the advertised access token lifetime in seconds.
	// Tokens are stateless, so nothing enforces it server-side.
	tokenExpiresIn = 3600

	accessTokenPrefix  = "mcp_token_"
	refreshTokenPrefix = "mcp_refresh_"

	// DefaultScope is granted when a request or registration names none.
	DefaultScope = "weather:read"
)

// Token is the successful response of the token endpoint.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthorizeRequest carries the query parameters of the authorization endpoint.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeResult is the outcome of a successful authorization request.
type AuthorizeResult struct {
	// Code is the issued authorization code.
	Code string
	// RedirectURL is the client's redirect URI with code and state appended.
	RedirectURL string
}

// TokenRequest carries the form parameters of the token endpoint.
type TokenRequest struct {
	GrantType    string
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
}

// ClientRegistration carries the metadata a client submits at registration.
type ClientRegistration struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// Authority implements the authorization-code flow over a core.Store: it
// issues codes bound to a client, redirect URI, scope and optional PKCE
// challenge, consumes each code at most once, and mints bearer tokens.
type Authority struct {
	store core.Store
}

// NewAuthority creates an Authority backed by the given store.
func NewAuthority(st core.Store) *Authority {
	return &Authority{store: st}
}

// Authorize validates an authorization request, issues a single-use code
// with a 10-minute expiry, and returns the redirect URL the user agent
// should be sent to. Validation failures are returned as *Error.
func (a *Authority) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ClientID == "" || req.RedirectURI == "" {
		return nil, NewError(ErrInvalidRequest, "client_id and redirect_uri are required")
	}

	client, err := a.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			return nil, NewError(ErrInvalidClient, "unknown client_id")
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	if !client.Active {
		return nil, NewError(ErrInvalidClient, "client is inactive")
	}

	if !redirectURIAllowed(req.RedirectURI, client.RedirectURIs) {
		return nil, NewError(ErrInvalidRedirectURI, "redirect_uri is not registered for this client")
	}

	if req.ResponseType != "code" {
		return nil, NewError(ErrUnsupportedResponseType, "only response_type=code is supported")
	}

	if req.CodeChallenge != "" {
		if req.CodeChallengeMethod != "plain" && req.CodeChallengeMethod != "S256" {
			return nil, NewError(ErrInvalidRequest, "invalid code_challenge_method")
		}
	}

	scope := req.Scope
	if scope == "" {
		scope = DefaultScope
	}
	// Scope checking is advisory: extra scopes are logged, never rejected.
	if unknown := unrecognizedScopes(scope, client.Scope); len(unknown) > 0 {
		core.LoggerFromCtx(ctx).Warn("authorization requested unrecognized scopes",
			"client_id", client.ID,
			"scopes", strings.Join(unknown, " "),
		)
	}

	if removed, err := a.store.SweepExpiredCodes(ctx); err == nil && removed > 0 {
		core.LoggerFromCtx(ctx).Debug("swept expired authorization codes", "count", removed)
	}

	now := time.Now()
	authCode := &core.AuthorizationCode{
		Code:                GenerateAuthorizationCode(),
		ClientID:            client.ID,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		Scope:               scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now.Unix(),
		ExpiresAt:           now.Add(codeTTL).Unix(),
	}
	if err := a.store.SaveAuthorizationCode(ctx, authCode); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	redirectURL, err := buildRedirectURL(req.RedirectURI, authCode.Code, req.State)
	if err != nil {
		return nil, NewError(ErrInvalidRedirectURI, "redirect_uri is not a valid URL")
	}

	core.LoggerFromCtx(ctx).Debug("authorization code issued",
		"client_id", client.ID,
		"redirect_uri", req.RedirectURI,
		"scope", scope,
		"pkce", req.CodeChallenge != "",
	)

	return &AuthorizeResult{Code: authCode.Code, RedirectURL: redirectURL}, nil
}

// Exchange redeems an authorization code for a bearer token. The code is
// removed from the store before validation, so replays and races can
// succeed at most once.
func (a *Authority) Exchange(ctx context.Context, req TokenRequest) (*Token, error) {
	if req.GrantType != "authorization_code" {
		return nil, NewError(ErrUnsupportedGrantType, "only grant_type=authorization_code is supported")
	}
	if req.Code == "" || req.ClientID == "" || req.RedirectURI == "" {
		return nil, NewError(ErrInvalidRequest, "code, client_id, and redirect_uri are required")
	}

	client, err := a.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			return nil, NewError(ErrInvalidClient, "unknown client_id")
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	if !client.Active {
		return nil, NewError(ErrInvalidClient, "client is inactive")
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(req.ClientSecret)) != 1 {
		return nil, NewError(ErrInvalidClient, "invalid client_secret")
	}

	// Single use is enforced by removal-on-read: the first exchange to
	// reach the store wins and every later attempt sees not-found.
	authCode, err := a.store.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) || errors.Is(err, store.ErrEmptyCode) {
			return nil, NewError(ErrInvalidGrant, "invalid or expired authorization code")
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	if time.Now().Unix() > authCode.ExpiresAt {
		return nil, NewError(ErrInvalidGrant, "authorization code expired")
	}
	if authCode.ClientID != req.ClientID {
		return nil, NewError(ErrInvalidGrant, "authorization code was issued to a different client")
	}
	if authCode.RedirectURI != req.RedirectURI {
		return nil, NewError(ErrInvalidGrant, "redirect_uri does not match the authorization request")
	}

	if authCode.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, NewError(ErrInvalidRequest, "code_verifier is required")
		}
		if !verifyCodeChallenge(req.CodeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
			return nil, NewError(ErrInvalidGrant, "invalid code_verifier")
		}
	}

	token := &Token{
		AccessToken:  newAccessToken(),
		TokenType:    "bearer",
		ExpiresIn:    tokenExpiresIn,
		RefreshToken: newRefreshToken(),
		Scope:        authCode.Scope,
	}

	core.LoggerFromCtx(ctx).Info("access token issued",
		"client_id", client.ID,
		"scope", token.Scope,
	)

	return token, nil
}

// RegisterClient creates a new client with generated credentials. The
// returned client is the only place the secret ever appears in full.
func (a *Authority) RegisterClient(ctx context.Context, reg ClientRegistration) (*core.Client, error) {
	if len(reg.RedirectURIs) == 0 {
		return nil, NewError(ErrInvalidRequest, "redirect_uris is required")
	}

	if len(reg.GrantTypes) == 0 {
		reg.GrantTypes = []string{"authorization_code"}
	}
	if len(reg.ResponseTypes) == 0 {
		reg.ResponseTypes = []string{"code"}
	}
	if reg.TokenEndpointAuthMethod == "" {
		reg.TokenEndpointAuthMethod = "client_secret_post"
	}
	if reg.Scope == "" {
		reg.Scope = DefaultScope
	}

	client := &core.Client{
		ID:              uuid.New().String(),
		Secret:          GenerateClientSecret(),
		Name:            reg.ClientName,
		RedirectURIs:    reg.RedirectURIs,
		GrantTypes:      reg.GrantTypes,
		ResponseTypes:   reg.ResponseTypes,
		TokenAuthMethod: reg.TokenEndpointAuthMethod,
		Scope:           reg.Scope,
		CreatedAt:       time.Now().Unix(),
		Active:          true,
	}
	if err := a.store.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	core.LoggerFromCtx(ctx).Info("client registered",
		"client_id", client.ID,
		"client_name", client.Name,
	)

	return client, nil
}

// GetClient returns one registered client by ID.
func (a *Authority) GetClient(ctx context.Context, clientID string) (*core.Client, error) {
	client, err := a.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) || errors.Is(err, store.ErrEmptyClientID) {
			return nil, NewError(ErrInvalidClient, "unknown client_id")
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return client, nil
}

// ListClients returns every registered client, active and inactive, with
// secrets redacted.
func (a *Authority) ListClients(ctx context.Context) ([]*core.Client, error) {
	clients, err := a.store.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	sanitized := make([]*core.Client, 0, len(clients))
	for _, client := range clients {
		sanitized = append(sanitized, client.Sanitized())
	}
	return sanitized, nil
}

func newAccessToken() string {
	u := uuid.New()
	return accessTokenPrefix + hex.EncodeToString(u[:])
}

func newRefreshToken() string {
	u := uuid.New()
	return refreshTokenPrefix + hex.EncodeToString(u[:])
}

// redirectURIAllowed requires an exact string match against the client's
// registered URIs. Prefix or host matching would let a registered path
// redirect codes to an attacker-controlled sibling.
func redirectURIAllowed(redirectURI string, allowed []string) bool {
	for _, uri := range allowed {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// buildRedirectURL appends code and state to the redirect URI, preserving
// any query parameters already present.
func buildRedirectURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	values := u.Query()
	values.Set("code", code)
	if state != "" {
		values.Set("state", state)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// unrecognizedScopes returns the requested scopes that are not in the
// client's granted set.
func unrecognizedScopes(requested, granted string) []string {
	grantedSet := make(map[string]struct{})
	for _, s := range strings.Fields(granted) {
		grantedSet[s] = struct{}{}
	}
	var unknown []string
	for _, s := range strings.Fields(requested) {
		if _, ok := grantedSet[s]; !ok {
			unknown = append(unknown, s)
		}
	}
	return unknown
}
