// Command campaignforge runs the turn-resolution engine's HTTP API,
// grounded on tarsy's cmd/tarsy/main.go: flag/env config dir, godotenv,
// gin.SetMode, wire store + engine + scheduler, serve.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/arcfable/campaignforge/cmd/campaignforge/api"
	"github.com/arcfable/campaignforge/internal/engineconfig"
	"github.com/arcfable/campaignforge/internal/rewind"
	"github.com/arcfable/campaignforge/internal/store/postgres"
	"github.com/arcfable/campaignforge/internal/timer"
	"github.com/arcfable/campaignforge/internal/turn"
	"github.com/arcfable/campaignforge/ports"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load env file", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := engineconfig.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()

	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()
	slog.Info("connected to PostgreSQL, migrations applied")

	uowFactory := postgres.NewFactory(store)

	engine := turn.New(turn.Config{
		UOWFactory:         uowFactory,
		LeaseTTLSeconds:    cfg.Engine.LeaseTTLSeconds,
		MaxConflictRetries: cfg.Engine.MaxConflictRetries,
	}, &unconfiguredLLM{}, &unconfiguredResolver{})

	rewindEngine := rewind.New(uowFactory)

	scheduler := timer.NewScheduler(uowFactory, engine, nil)
	defer scheduler.Shutdown()
	engine.SetInterrupter(scheduler)

	server := &api.Server{Engine: engine, Rewind: rewindEngine}
	router := server.Router()

	router.GET("/health", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		health, err := store.Health(reqCtx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": health, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": health})
	})

	slog.Info("HTTP server listening", "addr", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// unconfiguredLLM and unconfiguredResolver are placeholders for the
// adapters a deployment must supply: the actual LLM client and Discord
// mention resolver are out-of-scope external collaborators (spec §1, §6.1)
// with no implementation in this module.
type unconfiguredLLM struct{}

func (unconfiguredLLM) CompleteTurn(ctx context.Context, tc ports.TurnContext) (ports.LLMTurnOutput, error) {
	return ports.LLMTurnOutput{}, errUnconfigured("LLMPort")
}

type unconfiguredResolver struct{}

func (unconfiguredResolver) ResolveDiscordMention(ctx context.Context, mention string) (string, bool, error) {
	return "", false, errUnconfigured("ActorResolverPort")
}

type errUnconfigured string

func (e errUnconfigured) Error() string {
	return "campaignforge: no adapter configured for " + string(e)
}
