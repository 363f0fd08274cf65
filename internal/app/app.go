// Package app wires configuration, storage, the upstream client, and the
// HTTP surface into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/tandem-chat/backend/internal/catalog"
	"github.com/tandem-chat/backend/internal/config"
	"github.com/tandem-chat/backend/internal/httpapi"
	"github.com/tandem-chat/backend/internal/llm/openrouter"
	"github.com/tandem-chat/backend/internal/platform/logger"
	"github.com/tandem-chat/backend/internal/store"
	"github.com/tandem-chat/backend/internal/turn"
)

type App struct {
	Log    *logger.Logger
	Config *config.Config

	server *http.Server
	rdb    *redis.Client
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	convs := store.NewConversations(db)
	atts := store.NewAttachments(db)

	client, err := openrouter.New(cfg.Upstream, log)
	if err != nil {
		return nil, err
	}

	ttl := cfg.Catalog.CacheTTL.Duration
	var cache catalog.Cache
	var rdb *redis.Client
	if cfg.Catalog.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Catalog.RedisAddr})
		cache = catalog.NewRedisCache(rdb, ttl, log)
		log.Info("catalog cache backed by redis", "addr", cfg.Catalog.RedisAddr)
	} else {
		cache = catalog.NewMemoryCache(ttl)
	}
	provider := catalog.NewProvider(client, cache, log)

	seq := turn.NewSequencer(client, provider, log)

	r := httpapi.NewRouter(httpapi.RouterConfig{
		Log:                 log,
		AllowedOrigins:      cfg.HTTP.AllowedOrigins,
		MaxRequestBytes:     cfg.HTTP.MaxRequestBytes,
		ConversationHandler: httpapi.NewConversationHandler(log, convs),
		TurnHandler:         httpapi.NewTurnHandler(log, convs, atts, seq, cfg.Defaults),
		AttachmentHandler:   httpapi.NewAttachmentHandler(log, atts),
		ModelsHandler:       httpapi.NewModelsHandler(log, provider),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
	}

	return &App{
		Log:    log,
		Config: cfg,
		server: srv,
		rdb:    rdb,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.Log.Info("server listening", "addr", a.Config.HTTP.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		if a.rdb != nil {
			_ = a.rdb.Close()
		}
		a.Log.Info("server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
