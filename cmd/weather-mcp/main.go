package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bi-tools/weather-mcp/pkg/core"
	"github.com/bi-tools/weather-mcp/pkg/logger"
	"github.com/bi-tools/weather-mcp/pkg/oauth"
	"github.com/bi-tools/weather-mcp/pkg/store"
	"github.com/bi-tools/weather-mcp/pkg/weather"

	"github.com/appleboy/graceful"
)

func main() {
	var addr string
	var transport string
	var issuer string
	var apiKey string
	var logLevel string
	var storeType string
	var redisAddr string
	var redisPassword string
	var redisDB int
	var clientID string
	var clientSecret string
	var redirectURI string
	flag.StringVar(&addr, "addr", "", "address to listen on (defaults to :$PORT, then :8080)")
	flag.StringVar(&transport, "t", "http", "Transport type (stdio or http)")
	flag.StringVar(
		&transport,
		"transport",
		"http",
		"Transport type (stdio or http)",
	)
	flag.StringVar(&issuer, "issuer", "", "External base URL advertised in OAuth metadata (defaults to http://localhost<addr>)")
	flag.StringVar(&apiKey, "api-key", "", "OpenWeatherMap API key (defaults to $OPENWEATHER_API_KEY)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR). Defaults to DEBUG in development, INFO in production")
	flag.StringVar(&storeType, "store", "memory", "Store type: memory or redis")
	flag.StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address (only used when store=redis)")
	flag.StringVar(&redisPassword, "redis-password", "", "Redis password (only used when store=redis)")
	flag.IntVar(&redisDB, "redis-db", 0, "Redis database (only used when store=redis)")
	flag.StringVar(&clientID, "client-id", "", "Seed a static OAuth client with this ID")
	flag.StringVar(&clientSecret, "client-secret", "", "Secret for the static OAuth client")
	flag.StringVar(&redirectURI, "redirect-uri", "", "Redirect URI for the static OAuth client")
	flag.Parse()

	// Initialize logger with the specified log level
	logger.NewWithLevel(logLevel)

	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENWEATHER_API_KEY")
	}

	// Initialize store using factory pattern
	storeConfig := store.Config{
		Type: store.ParseStoreType(storeType),
		Redis: store.RedisOptions{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		},
	}

	oauthStore, err := store.NewStore(storeConfig)
	if err != nil {
		slog.Error("Failed to create store", "type", storeType, "error", err)
		os.Exit(1)
	}

	switch storeConfig.Type {
	case store.StoreTypeMemory:
		slog.Info("Using in-memory store")
	case store.StoreTypeRedis:
		slog.Info("Using Redis store", "addr", redisAddr, "db", redisDB)
	}

	if clientID != "" {
		if redirectURI == "" {
			slog.Error("Static client requires a redirect URI", "client_id", clientID)
			os.Exit(1)
		}
		seeded := &core.Client{
			ID:              clientID,
			Secret:          clientSecret,
			Name:            "Static Client",
			RedirectURIs:    []string{redirectURI},
			GrantTypes:      []string{"authorization_code"},
			ResponseTypes:   []string{"code"},
			TokenAuthMethod: "client_secret_post",
			Scope:           oauth.DefaultScope,
			CreatedAt:       time.Now().Unix(),
			Active:          true,
		}
		if err := oauthStore.CreateClient(context.Background(), seeded); err != nil {
			slog.Error("Failed to seed static client", "client_id", clientID, "error", err)
			os.Exit(1)
		}
		slog.Info("Static client registered", "client_id", clientID, "redirect_uri", redirectURI)
	}

	weatherClient := weather.NewClient(apiKey)
	if !weatherClient.Configured() {
		slog.Warn("OPENWEATHER_API_KEY is not set; weather tools will report a configuration error")
	}

	if issuer == "" {
		issuer = "http://localhost" + addr
	}

	app := newApplication(oauthStore, weatherClient, issuer)

	switch transport {
	case "stdio":
		if err := app.mcp.ServeStdio(); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	case "http":
		router := newRouter(app)

		// No WriteTimeout: /sse and the /mcp listen stream stay open far
		// longer than any fixed write deadline.
		srv := &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: 10 * time.Second, // 10 seconds
			IdleTimeout: 60 * time.Second, // 60 seconds
		}

		m := graceful.NewManager()
		m.AddRunningJob(func(ctx context.Context) error {
			slog.Info("MCP HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		m.AddShutdownJob(func() error {
			slog.Info("Shutdown signal received, shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			if redisStore, ok := oauthStore.(*store.RedisStore); ok {
				redisStore.Close()
			}
			slog.Info("Server shutdown gracefully")
			return nil
		})

		<-m.Done()
	default:
		slog.Error("Invalid transport type", "transport", transport)
		os.Exit(1)
	}
}
