package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
)

// handleSSE serves the event stream: one connected event, then heartbeats
// until the client goes away.
func (app *application) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if err := app.streamer.Serve(c.Request.Context(), c.Writer); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Event stream ended with error", "error", err)
	}
}
