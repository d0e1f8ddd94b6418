package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/llm"
	"github.com/campwire/bunkmate/internal/service"
	"github.com/campwire/bunkmate/internal/storage"
)

// initStorage opens the database named in configuration and runs migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/bunkmate/bunkmate.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// createAIClient builds the provider client from viper configuration.
func createAIClient() (llm.Client, error) {
	cfg := llm.Config{
		Provider:    viper.GetString("ai.provider"),
		APIKey:      viper.GetString("ai.api_key"),
		Model:       viper.GetString("ai.model"),
		Temperature: viper.GetFloat64("ai.temperature"),
		MaxTokens:   viper.GetInt("ai.max_tokens"),
		RateLimit:   viper.GetInt("ai.rate_limit"),
	}
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	return llm.NewClient(cfg)
}
