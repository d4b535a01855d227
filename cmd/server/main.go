package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidtube/accounts/internal/account"
	"github.com/vidtube/accounts/internal/api"
	"github.com/vidtube/accounts/internal/auth"
	"github.com/vidtube/accounts/internal/cache"
	"github.com/vidtube/accounts/internal/config"
	"github.com/vidtube/accounts/internal/db"
	"github.com/vidtube/accounts/internal/events"
	"github.com/vidtube/accounts/internal/health"
	"github.com/vidtube/accounts/internal/logger"
	"github.com/vidtube/accounts/internal/media"
	"github.com/vidtube/accounts/internal/metrics"
	"github.com/vidtube/accounts/internal/token"
)

type userStore interface {
	auth.UserStore
	account.UserStore
}

type stores struct {
	users   userStore
	subs    account.SubscriptionStore
	history account.HistoryStore
	ping    func(ctx context.Context) error
	close   func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error(context.Background(), "failed to load configuration", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	mediaStore, err := openMedia(ctx, cfg, log)
	if err != nil {
		return err
	}

	var stats account.StatsCache
	var redisPing func(context.Context) error
	if cfg.RedisAddr != "" {
		c, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn(ctx, "redis unavailable, channel stats will not be cached", map[string]any{"error": err.Error()})
		} else {
			defer c.Close()
			stats = c
			redisPing = c.Ping
		}
	}

	codec, err := token.NewCodec(
		token.Key{Secret: []byte(cfg.AccessTokenSecret), TTL: cfg.AccessTokenExpiry},
		token.Key{Secret: []byte(cfg.RefreshTokenSecret), TTL: cfg.RefreshTokenExpiry},
	)
	if err != nil {
		return err
	}

	m := metrics.Default()
	hub := events.NewHub(m)
	go hub.Run(ctx)

	sessions := auth.NewService(st.users, codec, hub, m)
	accounts := account.NewService(account.Stores{
		Users:         st.users,
		Subscriptions: st.subs,
		History:       st.history,
	}, mediaStore, stats, cfg.ChannelStatsTTL)

	checks := []health.Check{
		{Name: "database", Run: st.ping},
		{Name: "media", Run: mediaStore.Ping, Optional: true},
	}
	if redisPing != nil {
		checks = append(checks, health.Check{Name: "redis", Run: redisPing, Optional: true})
	}

	router := api.NewRouter(api.Deps{
		Sessions:     sessions,
		AuthHandlers: auth.NewHandlers(sessions, auth.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}),
		Accounts:     account.NewHandlers(accounts, account.NewUploads(cfg.UploadDir, cfg.MaxUploadBytes)),
		Events:       events.NewHandler(hub, cfg.CORSOrigins),
		Health:       health.NewHandler(health.NewChecker(&health.CheckerConfig{Checks: checks, Version: cfg.Version})),
		Metrics:      m,
		Logger:       log,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: 2*cfg.MaxUploadBytes + 1<<20,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", map[string]any{"addr": cfg.ServerAddr, "version": cfg.Version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	hasher := db.NewHasher(cfg.BcryptCost)

	if cfg.DBDriver == "memory" {
		log.Warn(ctx, "using in-memory store, data is lost on restart")
		mem := db.NewMemoryStore(hasher)
		return &stores{
			users:   mem,
			subs:    mem,
			history: mem,
			ping:    func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil
	}

	database, err := db.New(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	log.Info(ctx, "database ready", map[string]any{"host": cfg.DBHost, "name": cfg.DBName})

	return &stores{
		users:   db.NewUserRepository(database, hasher),
		subs:    db.NewSubscriptionRepository(database),
		history: db.NewWatchHistoryRepository(database),
		ping:    database.PingContext,
		close:   database.Close,
	}, nil
}

func openMedia(ctx context.Context, cfg *config.Config, log *logger.Logger) (media.Store, error) {
	mcfg := &media.Config{
		Endpoint:  cfg.MediaEndpoint,
		AccessKey: cfg.MediaAccessKey,
		SecretKey: cfg.MediaSecretKey,
		Bucket:    cfg.MediaBucket,
		Region:    cfg.MediaRegion,
		UseSSL:    cfg.MediaUseSSL,
		PublicURL: cfg.MediaPublicURL,
	}

	if cfg.MediaBackend == "s3" {
		return media.NewS3Store(mcfg), nil
	}

	store, err := media.NewMinioStore(mcfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Warn(ctx, "media bucket not ready", map[string]any{"bucket": cfg.MediaBucket, "error": err.Error()})
	}
	return store, nil
}
