// Package storefront wires the session managers into one client.
package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/auth"
	"github.com/fjod/chibi-storefront/internal/cart"
	"github.com/fjod/chibi-storefront/internal/catalog"
	"github.com/fjod/chibi-storefront/internal/config"
	"github.com/fjod/chibi-storefront/internal/events"
	"github.com/fjod/chibi-storefront/internal/favorites"
	"github.com/fjod/chibi-storefront/internal/notify"
	"github.com/fjod/chibi-storefront/internal/storage"
)

type App struct {
	Config        *config.Config
	Store         storage.Store
	API           *apiclient.Client
	Notifications *notify.Center
	Events        *events.Recorder
	Auth          *auth.Manager
	Cart          *cart.Manager
	Favorites     *favorites.Manager
	Catalog       *catalog.Provider

	log *zap.Logger
}

// New opens the configured state backend and builds the app on top of it.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.State)
	if err != nil {
		return nil, err
	}
	app, err := NewWithStore(cfg, store, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

// NewWithStore builds the app around an existing store.
func NewWithStore(cfg *config.Config, store storage.Store, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	client, err := apiclient.New(apiclient.Options{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.RequestTimeout,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerCooldown: cfg.API.BreakerCooldown,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	var pub events.Publisher = events.NopPublisher{}
	if len(cfg.Events.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Events.Topic, cfg.Events.Brokers...)
		log.Info("publishing activity events", zap.Strings("brokers", cfg.Events.Brokers), zap.String("topic", cfg.Events.Topic))
	}
	rec := events.NewRecorder(pub, log)
	center := notify.NewCenter(cfg.Notify.DefaultTTL, log)

	authMgr := auth.NewManager(client, store, center, rec, log)
	authMgr.SetRefreshTimeout(cfg.API.RequestTimeout)
	cartMgr := cart.NewManager(client, store, authMgr, center, rec, log, cart.Options{
		MergeGuestOnLogin: cfg.Cart.MergeGuestOnLogin,
	})
	favMgr := favorites.NewManager(client, store, authMgr, center, rec, log, favorites.Options{
		MergeGuestOnLogin: cfg.Favorites.MergeGuestOnLogin,
	})
	provider := catalog.NewProvider(client, authMgr, center, cfg.API.PageSize, log)

	client.Use(authMgr.AttachBearer)
	client.Use(cartMgr.AttachSessionKey)
	client.OnUnauthorized(authMgr)
	authMgr.OnUserChange(cartMgr.HandleUserChange)
	authMgr.OnUserChange(favMgr.HandleUserChange)

	return &App{
		Config:        cfg,
		Store:         store,
		API:           client,
		Notifications: center,
		Events:        rec,
		Auth:          authMgr,
		Cart:          cartMgr,
		Favorites:     favMgr,
		Catalog:       provider,
		log:           log.Named("storefront"),
	}, nil
}

// Start restores the persisted session and loads favorites and the cart.
// An unreachable backend leaves the app running as a guest.
func (a *App) Start(ctx context.Context) error {
	if err := a.Cart.Restore(ctx); err != nil {
		return err
	}
	if err := a.Auth.Restore(ctx); err != nil {
		a.log.Warn("could not restore session", zap.Error(err))
	}
	if err := a.Favorites.Load(ctx); err != nil {
		a.log.Warn("could not load favorites", zap.Error(err))
	}
	if err := a.Cart.Fetch(ctx); err != nil {
		a.log.Warn("could not load cart", zap.Error(err))
	}
	return nil
}

// Close stops timers and releases the event writer and the state store.
func (a *App) Close() error {
	a.Notifications.Close()
	return errors.Join(a.Events.Close(), a.Store.Close())
}

// OpenStore opens the persisted state backend named by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StateConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendSQLite:
		s, err := storage.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite state: %w", err)
		}
		return s, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return storage.NewRedisStore(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
