// Package gateway serves the storefront session over a small REST API so a
// browser or script can drive it locally.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/storefront"
)

func NewRouter(app *storefront.App, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := app.Config.API.RequestTimeout
	maxBody := app.Config.Gateway.MaxRequestBodySize

	sessionHandler := NewSessionHandler(app.Auth, timeout)
	catalogHandler := NewCatalogHandler(app.Catalog, timeout)
	cartHandler := NewCartHandler(app.Cart, timeout)
	favoritesHandler := NewFavoritesHandler(app.Favorites, timeout)
	notificationsHandler := NewNotificationsHandler(app.Notifications)
	adminHandler := NewAdminHandler(app.Catalog, timeout, maxBody)

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(AccessLog(log.Named("gateway")))
	r.Use(middleware.Recoverer)
	r.Use(MaxBodySize(maxBody))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/login", sessionHandler.Login)
			r.Post("/register", sessionHandler.Register)
			r.Post("/google", sessionHandler.Google)
			r.Post("/logout", sessionHandler.Logout)
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", catalogHandler.List)
			r.Get("/{id}", catalogHandler.Get)
		})
		r.Get("/categories", catalogHandler.Categories)
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
		})
		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", favoritesHandler.List)
			r.Post("/{product_id}/toggle", favoritesHandler.Toggle)
		})
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationsHandler.List)
			r.Delete("/{id}", notificationsHandler.Dismiss)
		})
		r.Route("/admin/products", func(r chi.Router) {
			r.Post("/", adminHandler.Create)
			r.Patch("/{id}", adminHandler.Update)
			r.Delete("/{id}", adminHandler.Delete)
		})
	})

	return otelhttp.NewHandler(r, "chibi-gateway")
}

// Serve runs the gateway until ctx is cancelled, then shuts down within
// the configured timeout.
func Serve(ctx context.Context, app *storefront.App, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := app.Config.Gateway
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      NewRouter(app, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: app.Config.API.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway starting", zap.String("addr", srv.Addr))
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

	log.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("gateway exited")
	return nil
}
