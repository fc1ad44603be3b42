// Package main runs the weather MCP server: an OAuth 2.0 authorization-code
// authority and client registry fronting weather tools exposed over MCP,
// REST, and an SSE event stream.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bi-tools/weather-mcp/pkg/core"
	"github.com/bi-tools/weather-mcp/pkg/events"
	"github.com/bi-tools/weather-mcp/pkg/oauth"
	"github.com/bi-tools/weather-mcp/pkg/observability"
	"github.com/bi-tools/weather-mcp/pkg/operation"
	"github.com/bi-tools/weather-mcp/pkg/weather"

	sloggin "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName        = "Weather MCP Server"
	serverVersion     = "1.0.0"
	serverDescription = "A server that provides weather information and forecasts."
	infoResourceURI   = "info://server/weather"
)

// MCPServer wraps the underlying MCP server instance.
type MCPServer struct {
	server *server.MCPServer
}

// NewMCPServer creates and configures a new MCPServer instance with the
// weather tool catalog and the server info resource.
func NewMCPServer(registry *operation.Registry) *MCPServer {
	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(observability.ToolMiddleware()),
	)

	// Register Tool
	registry.Register(mcpServer)

	mcpServer.AddResource(
		mcp.NewResource(infoResourceURI, "Server Info",
			mcp.WithResourceDescription(serverDescription),
			mcp.WithMIMEType("application/json"),
		),
		serverInfoHandler(registry.Names()),
	)

	return &MCPServer{
		server: mcpServer,
	}
}

// serverInfo is the payload of the info://server/weather resource.
type serverInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
	Version     string   `json:"version"`
}

// serverInfoHandler returns the read handler for the server info resource.
func serverInfoHandler(tools []string) server.ResourceHandlerFunc {
	info, _ := json.MarshalIndent(serverInfo{
		Name:        serverName,
		Description: serverDescription,
		Tools:       tools,
		Version:     serverVersion,
	}, "", "  ")

	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      infoResourceURI,
				MIMEType: "application/json",
				Text:     string(info),
			},
		}, nil
	}
}

// ServeHTTP returns a streamable HTTP server that injects the auth token
// from HTTP requests into the context.
func (s *MCPServer) ServeHTTP() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.server,
		server.WithHeartbeatInterval(30*time.Second),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			ctx = core.AuthFromRequest(ctx, r)
			return core.WithRequestID(ctx)
		}),
	)
}

// ServeStdio starts the MCP server using stdio transport, injecting the
// auth token from the environment into the context.
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.server, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		ctx = core.AuthFromEnv(ctx)
		return core.WithRequestID(ctx)
	}))
}

// application bundles the dependencies shared by the HTTP handlers.
type application struct {
	authority *oauth.Authority
	registry  *operation.Registry
	weather   *weather.Client
	streamer  *events.Streamer
	mcp       *MCPServer
	issuer    string
}

// newApplication wires the authority, tool registry, event streamer, and MCP
// server around the given store and weather client. issuer is the external
// base URL advertised in the OAuth metadata documents.
func newApplication(st core.Store, weatherClient *weather.Client, issuer string) *application {
	registry := operation.NewRegistry(weatherClient)

	return &application{
		authority: oauth.NewAuthority(st),
		registry:  registry,
		weather:   weatherClient,
		streamer: events.NewStreamer(events.Options{
			ServerName: serverName,
			Version:    serverVersion,
			Tools:      registry.Names(),
		}),
		mcp:    NewMCPServer(registry),
		issuer: issuer,
	}
}

// newRouter builds the gin engine with every HTTP endpoint registered.
func newRouter(app *application) *gin.Engine {
	router := gin.New()
	router.Use(sloggin.SetLogger(), gin.Recovery(), corsMiddleware())

	// One streamable server backs all three methods so sessions created by
	// POST stay visible to GET and DELETE.
	streamable := gin.WrapH(app.mcp.ServeHTTP())
	router.POST("/mcp", authMiddleware, streamable)
	router.GET("/mcp", authMiddleware, streamable)
	router.DELETE("/mcp", authMiddleware, streamable)

	router.GET("/oauth/authorize", corsMiddleware("Authorization", "Content-Type"), app.handleAuthorize)
	router.POST("/oauth/token", corsMiddleware("Authorization", "Content-Type"), app.handleToken)

	router.GET("/api/clients", app.handleListClients)
	router.POST("/api/clients", app.handleRegisterClient)
	router.POST("/api/clients/register", app.handleRegisterClient)

	router.POST("/api/tools/list", app.handleListTools)
	router.POST("/api/tools/call", app.handleCallTool)

	router.GET("/sse", app.handleSSE)
	router.GET("/health", app.handleHealth)
	router.GET("/", app.handleRoot)

	router.GET("/.well-known/oauth-authorization-server", app.handleAuthServerMetadata)
	router.GET("/.well-known/oauth-protected-resource", app.handleProtectedResourceMetadata)

	return router
}
