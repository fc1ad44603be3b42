package main

import (
	"errors"
	"net/http"

	"github.com/bi-tools/weather-mcp/pkg/weather"

	"github.com/gin-gonic/gin"
)

// handleHealth reports liveness plus the result of a bounded probe against
// the weather upstream: working, error, or not_configured.
func (app *application) handleHealth(c *gin.Context) {
	apiStatus := "working"
	switch err := app.weather.Probe(c.Request.Context()); {
	case errors.Is(err, weather.ErrNotConfigured):
		apiStatus = "not_configured"
	case err != nil:
		apiStatus = "error"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"weather_api": apiStatus,
		"endpoints": []string{
			"/mcp",
			"/sse",
			"/oauth/authorize",
			"/oauth/token",
			"/api/clients",
			"/api/tools/list",
			"/api/tools/call",
			"/health",
		},
	})
}

// handleRoot serves the service banner with the endpoint map.
func (app *application) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serverName,
		"version": serverVersion,
		"endpoints": gin.H{
			"mcp":             "/mcp",
			"sse":             "/sse",
			"oauth_authorize": "/oauth/authorize",
			"oauth_token":     "/oauth/token",
			"clients":         "/api/clients",
			"tools":           "/api/tools/list",
			"health":          "/health",
		},
	})
}
