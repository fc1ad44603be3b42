package main

import (
	"log/slog"
	"net/http"

	"github.com/bi-tools/weather-mcp/pkg/oauth"

	"github.com/gin-gonic/gin"
)

// handleRegisterClient registers a new OAuth client. The generated secret is
// returned once in the 201 response and never again.
func (app *application) handleRegisterClient(c *gin.Context) {
	var reg oauth.ClientRegistration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	client, err := app.authority.RegisterClient(c.Request.Context(), reg)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	slog.Info("Client registered", "client_id", client.ID, "client_name", client.Name)
	c.JSON(http.StatusCreated, client)
}

// handleListClients returns every registered client, active and inactive,
// with secrets redacted.
func (app *application) handleListClients(c *gin.Context) {
	clients, err := app.authority.ListClients(c.Request.Context())
	if err != nil {
		writeOAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}
