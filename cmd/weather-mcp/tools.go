package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bi-tools/weather-mcp/pkg/operation"
	"github.com/bi-tools/weather-mcp/pkg/weather"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolCallRequest is the body of POST /api/tools/call.
type toolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// toolContent is one content item of a tool call response.
type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// handleListTools returns the static tool catalog.
func (app *application) handleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": app.registry.Descriptors()})
}

// handleCallTool dispatches a REST tool invocation through the same handlers
// that back the MCP endpoint.
func (app *application) handleCallTool(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tool name is required"})
		return
	}

	res, err := app.registry.Call(c.Request.Context(), req.Name, req.Arguments)
	if err != nil {
		writeToolError(c, err)
		return
	}

	content := make([]toolContent, 0, len(res.Content))
	for _, item := range res.Content {
		if txt, ok := item.(mcp.TextContent); ok {
			content = append(content, toolContent{Type: "text", Text: txt.Text})
		}
	}
	if res.IsError {
		detail := "tool execution failed"
		if len(content) > 0 {
			detail = content[0].Text
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": detail})
		return
	}

	c.JSON(http.StatusOK, gin.H{"content": content})
}

// writeToolError maps tool dispatch and weather lookup failures onto REST
// status codes: unknown tools and cities are 404, a missing API key and
// upstream faults are 500, anything else is a 400 argument error.
func writeToolError(c *gin.Context, err error) {
	var notFound *weather.NotFoundError
	var upstream *weather.UpstreamError
	switch {
	case errors.Is(err, operation.ErrToolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.Is(err, weather.ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "weather API key not configured"})
	case errors.As(err, &upstream):
		slog.Error("Weather upstream failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream unavailable"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
