package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bi-tools/weather-mcp/pkg/oauth"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/client/transport"
)

// handleAuthorize issues a single-use authorization code and redirects the
// user agent back to the client's callback with code and state attached.
func (app *application) handleAuthorize(c *gin.Context) {
	req := oauth.AuthorizeRequest{
		ResponseType:        c.DefaultQuery("response_type", "code"),
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		State:               c.Query("state"),
		Scope:               c.Query("scope"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}

	slog.Debug("Authorization request received",
		"client_id", req.ClientID,
		"redirect_uri", req.RedirectURI,
		"response_type", req.ResponseType,
		"scope", req.Scope,
		"state", req.State,
		"code_challenge", req.CodeChallenge,
		"code_challenge_method", req.CodeChallengeMethod,
	)

	result, err := app.authority.Authorize(c.Request.Context(), req)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.Redirect(http.StatusFound, result.RedirectURL)
}

// handleToken exchanges an authorization code for a bearer token. Parameters
// arrive form-encoded per RFC 6749.
func (app *application) handleToken(c *gin.Context) {
	req := oauth.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		Code:         c.PostForm("code"),
		ClientID:     c.PostForm("client_id"),
		ClientSecret: c.PostForm("client_secret"),
		RedirectURI:  c.PostForm("redirect_uri"),
		CodeVerifier: c.PostForm("code_verifier"),
	}

	slog.Debug("Token request received",
		"grant_type", req.GrantType,
		"code", req.Code,
		"client_id", req.ClientID,
		"redirect_uri", req.RedirectURI,
	)

	token, err := app.authority.Exchange(c.Request.Context(), req)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// handleAuthServerMetadata serves the RFC 8414 authorization server metadata.
func (app *application) handleAuthServerMetadata(c *gin.Context) {
	metadata := transport.AuthServerMetadata{
		Issuer:                            app.issuer,
		AuthorizationEndpoint:             app.issuer + "/oauth/authorize",
		TokenEndpoint:                     app.issuer + "/oauth/token",
		RegistrationEndpoint:              app.issuer + "/api/clients/register",
		ScopesSupported:                   []string{oauth.DefaultScope},
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		CodeChallengeMethodsSupported:     []string{"plain", "S256"},
	}
	c.JSON(http.StatusOK, metadata)
}

// handleProtectedResourceMetadata serves the RFC 9728 protected resource
// metadata pointing MCP clients at this authorization server.
func (app *application) handleProtectedResourceMetadata(c *gin.Context) {
	metadata := &transport.OAuthProtectedResource{
		AuthorizationServers: []string{app.issuer},
		Resource:             app.issuer + "/mcp",
		ResourceName:         serverName,
	}
	c.JSON(http.StatusOK, metadata)
}

// writeOAuthError renders *oauth.Error values with their mapped HTTP status;
// anything else is reported as an internal server error.
func writeOAuthError(c *gin.Context, err error) {
	var oauthErr *oauth.Error
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.HTTPStatus(), oauthErr)
		return
	}
	slog.Error("OAuth operation failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":             "server_error",
		"error_description": err.Error(),
	})
}
