package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/events"
	"github.com/fjod/chibi-storefront/internal/notify"
	"github.com/fjod/chibi-storefront/internal/storage"
)

const (
	SessionHeader = "X-Session-Key"
	cartPath      = "/cart/"
)

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusLoaded        Status = "loaded"
	StatusError         Status = "error"
)

type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) (*apiclient.Response, error)
}

// Session tells the cart whether requests are made on behalf of a user.
type Session interface {
	IsAuthenticated() bool
	User() *domain.User
}

type Options struct {
	// MergeGuestOnLogin asks the API to merge the guest cart into the account
	// on login. Without it the guest key is simply discarded.
	MergeGuestOnLogin bool
}

// Manager holds the server-confirmed cart snapshot and the guest session key.
type Manager struct {
	api      API
	store    storage.Store
	session  Session
	notifier notify.Notifier
	events   *events.Recorder
	log      *zap.Logger
	opts     Options

	mu         sync.RWMutex
	cart       *domain.Cart
	status     Status
	lastErr    string
	sessionKey string
}

func NewManager(api API, store storage.Store, session Session, notifier notify.Notifier, rec *events.Recorder, log *zap.Logger, opts Options) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		api:      api,
		store:    store,
		session:  session,
		notifier: notifier,
		events:   rec,
		log:      log.Named("cart"),
		opts:     opts,
		status:   StatusUninitialized,
	}
}

// Restore reads the persisted guest session key.
func (m *Manager) Restore(ctx context.Context) error {
	key, err := storage.LoadString(ctx, m.store, storage.KeyCartSessionKey)
	if err != nil {
		return fmt.Errorf("load cart session key: %w", err)
	}
	m.mu.Lock()
	m.sessionKey = key
	m.mu.Unlock()
	return nil
}

func (m *Manager) Fetch(ctx context.Context) error {
	return m.sync(ctx, "fetch", apiclient.Request{Method: http.MethodGet, Path: cartPath}, "")
}

func (m *Manager) Add(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return m.sync(ctx, "add", apiclient.Request{
		Method: http.MethodPost,
		Path:   cartPath,
		Body:   itemBody{ProductID: productID, Quantity: quantity},
	}, "Product added to cart")
}

// Update sets the quantity of a line. Zero removes the line.
func (m *Manager) Update(ctx context.Context, productID int64, quantity int) error {
	switch {
	case quantity == 0:
		return m.Remove(ctx, productID)
	case quantity < 0:
		return ErrInvalidQuantity
	}
	return m.sync(ctx, "update", apiclient.Request{
		Method: http.MethodPut,
		Path:   cartPath,
		Body:   itemBody{ProductID: productID, Quantity: quantity},
	}, "Cart updated")
}

func (m *Manager) Remove(ctx context.Context, productID int64) error {
	return m.sync(ctx, "remove", apiclient.Request{
		Method: http.MethodDelete,
		Path:   cartPath,
		Body:   itemBody{ProductID: productID},
	}, "Product removed from cart")
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.sync(ctx, "clear", apiclient.Request{Method: http.MethodDelete, Path: cartPath + "clear/"}, "Cart emptied")
}

type itemBody struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity,omitempty"`
}

func (m *Manager) sync(ctx context.Context, op string, req apiclient.Request, successMsg string) error {
	m.setStatus(StatusLoading)

	var snapshot *domain.Cart
	resp, err := m.api.Do(ctx, req, &snapshot)
	if resp != nil {
		m.adoptSessionKey(ctx, resp.Header.Get(SessionHeader))
	}
	if err != nil {
		return m.fail(ctx, op, err, req.Method == http.MethodGet)
	}

	// mutations answered without a body are followed by a plain read
	if snapshot == nil && req.Method != http.MethodGet {
		resp, err = m.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: cartPath}, &snapshot)
		if resp != nil {
			m.adoptSessionKey(ctx, resp.Header.Get(SessionHeader))
		}
		if err != nil {
			return m.fail(ctx, op, err, true)
		}
	}
	if snapshot == nil {
		snapshot = &domain.Cart{}
	}

	m.mu.Lock()
	m.cart = snapshot
	m.status = StatusLoaded
	m.lastErr = ""
	m.mu.Unlock()

	if successMsg != "" {
		m.notifier.Add(successMsg, domain.SeveritySuccess, 0)
		m.events.Record(ctx, domain.EventCartUpdated, m.actor(), map[string]any{
			"op":          op,
			"total_items": snapshot.ItemCount(),
			"total":       snapshot.Total.String(),
		})
	}
	return nil
}

// fail records a failed request. A 404 on a cart read means the guest
// session is gone; a 404 on a mutation only concerns the line it targeted.
func (m *Manager) fail(ctx context.Context, op string, err error, read bool) error {
	if read && apiclient.IsStatus(err, http.StatusNotFound) && !m.isAuthenticated() && m.SessionKey() != "" {
		m.log.Info("guest cart session rejected, dropping key")
		m.clearSessionKey(ctx)
		err = fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}

	msg := apiclient.Message(err)
	m.mu.Lock()
	m.status = StatusError
	m.lastErr = msg
	m.mu.Unlock()

	m.notifier.Add(msg, domain.SeverityError, 0)
	m.log.Debug("cart request failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("cart %s: %w", op, err)
}

// AttachSessionKey is the request interceptor sending the guest key on cart
// requests. Authenticated requests never carry it.
func (m *Manager) AttachSessionKey(_ context.Context, req *http.Request) error {
	if !isCartPath(req.URL.Path) || m.isAuthenticated() {
		return nil
	}
	if key := m.SessionKey(); key != "" {
		req.Header.Set(SessionHeader, key)
	}
	return nil
}

func isCartPath(path string) bool {
	return strings.Contains(path, cartPath)
}

// HandleUserChange reacts to auth transitions. A guest logging in has its
// cart merged into the account once when merging is enabled; the key is
// discarded either way. A logout resets the snapshot.
func (m *Manager) HandleUserChange(ctx context.Context, prev, next *domain.User) {
	switch {
	case prev == nil && next != nil:
		if key := m.SessionKey(); key != "" {
			if m.opts.MergeGuestOnLogin {
				m.merge(ctx, key, next)
			}
			m.clearSessionKey(ctx)
		}
		if err := m.Fetch(ctx); err != nil {
			m.log.Warn("cart refresh after login failed", zap.Error(err))
		}
	case prev != nil && next == nil:
		m.Reset()
	case prev != nil && next != nil:
		if err := m.Fetch(ctx); err != nil {
			m.log.Warn("cart refresh after user switch failed", zap.Error(err))
		}
	}
}

func (m *Manager) merge(ctx context.Context, key string, user *domain.User) {
	_, err := m.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   cartPath + "merge/",
		Body:   map[string]string{"session_key": key},
	}, nil)
	if err != nil {
		m.log.Warn("guest cart merge failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	m.log.Info("guest cart merged into account", zap.Int64("user_id", user.ID))
}

// Reset drops the snapshot. The guest key is kept.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = nil
	m.status = StatusUninitialized
	m.lastErr = ""
}

func (m *Manager) Cart() *domain.Cart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Clone()
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) SessionKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionKey
}

func (m *Manager) adoptSessionKey(ctx context.Context, key string) {
	if key == "" || m.isAuthenticated() {
		return
	}
	m.mu.Lock()
	if key == m.sessionKey {
		m.mu.Unlock()
		return
	}
	m.sessionKey = key
	m.mu.Unlock()

	if err := storage.SaveString(ctx, m.store, storage.KeyCartSessionKey, key); err != nil {
		m.log.Warn("failed to persist cart session key", zap.Error(err))
	}
}

func (m *Manager) clearSessionKey(ctx context.Context) {
	m.mu.Lock()
	m.sessionKey = ""
	m.mu.Unlock()
	if err := m.store.Delete(ctx, storage.KeyCartSessionKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn("failed to delete cart session key", zap.Error(err))
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) isAuthenticated() bool {
	return m.session != nil && m.session.IsAuthenticated()
}

func (m *Manager) actor() string {
	if m.session != nil {
		if u := m.session.User(); u != nil {
			return "user:" + strconv.FormatInt(u.ID, 10)
		}
	}
	return "session:" + m.SessionKey()
}

// ItemCount is a convenience for badges.
func (m *Manager) ItemCount() int {
	return m.Cart().ItemCount()
}
