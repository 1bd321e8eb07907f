// ABOUTME: Wires configuration into stores, the backend client, and the assistant service
// ABOUTME: Shared by serve and the one-shot CLI commands

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/2389/tallkotte/internal/assistant"
	"github.com/2389/tallkotte/internal/backend"
	"github.com/2389/tallkotte/internal/cache"
	"github.com/2389/tallkotte/internal/config"
	"github.com/2389/tallkotte/internal/conversation"
	"github.com/2389/tallkotte/internal/docstore"
	"github.com/2389/tallkotte/internal/store"
	"github.com/2389/tallkotte/internal/worker"
)

// app holds everything a command needs.
type app struct {
	cfg      *config.Config
	docs     docstore.Store
	cache    cache.Store
	pool     *worker.Pool
	events   *conversation.EventBroadcaster
	messages *store.MessageDAO
	svc      *assistant.Service
	logger   *slog.Logger
}

func openDocStore(cfg config.DatabaseConfig, logger *slog.Logger) (docstore.Store, error) {
	switch cfg.Driver {
	case "mongo":
		return docstore.NewMongoStore(cfg.URI, cfg.Name, logger), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return docstore.NewSQLiteStore(cfg.Path, logger)
	case "memory":
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Driver {
	case "redis":
		rs := cache.NewRedisStore(cache.RedisOptions{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
			TTL:      cfg.TTL,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			rs.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
		}
		return rs, nil
	case "memory":
		return cache.NewMemoryStore(cfg.TTL, cfg.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// backendRetries maps the configured retry count to the backend's convention,
// where a negative value keeps the SDK default.
func backendRetries(c config.OpenAIConfig) int {
	if c.MaxRetries == nil {
		return -1
	}
	return *c.MaxRetries
}

// newApp opens the stores and bootstraps the assistant.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	docs, err := openDocStore(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	c, err := openCache(ctx, cfg.Cache)
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	client := backend.NewOpenAI(backend.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		MaxRetries: backendRetries(cfg.OpenAI),
	}, logger)

	a := &app{
		cfg:      cfg,
		docs:     docs,
		cache:    c,
		pool:     worker.New(cfg.Runs.Workers, logger),
		events:   conversation.NewEventBroadcaster(logger),
		messages: store.NewMessageDAO(docs, c, logger),
		logger:   logger,
	}

	orch := conversation.New(client, a.messages, conversation.NewRunStatuses(c, logger), a.events, conversation.Options{
		WaitDelay: cfg.Runs.WaitDelay,
		MaxWait:   cfg.Runs.MaxWait,
	}, logger)

	a.svc = assistant.NewService(assistant.Deps{
		Backend:      client,
		Assistants:   store.NewAssistantDAO(docs, c, logger),
		Threads:      store.NewThreadDAO(docs, c, logger),
		Messages:     a.messages,
		Orchestrator: orch,
		Pool:         a.pool,
		InitMessage:  cfg.Assistant.InitMessage,
	}, logger)

	_, err = a.svc.Bootstrap(ctx, assistant.Bootstrap{
		AssistantID: cfg.OpenAI.AssistantID,
		Spec: backend.AssistantSpec{
			Name:         cfg.Assistant.Name,
			Description:  cfg.Assistant.Description,
			Instructions: cfg.Assistant.Instructions,
			Model:        cfg.OpenAI.Model,
			Tools:        cfg.Assistant.Tools,
		},
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("bootstrapping assistant: %w", err)
	}
	return a, nil
}

// drain waits for background response fetches, bounded by the run timeout.
func (a *app) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Runs.MaxWait+10*time.Second)
	defer cancel()
	return a.pool.Wait(ctx)
}

// Close releases the stores and event subscribers.
func (a *app) Close() error {
	a.events.Close()
	return errors.Join(a.cache.Close(), a.docs.Close())
}
