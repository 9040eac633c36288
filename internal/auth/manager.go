package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/events"
	"github.com/fjod/chibi-storefront/internal/notify"
	"github.com/fjod/chibi-storefront/internal/storage"
)

// API is the transport the managers need; *apiclient.Client implements it.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) (*apiclient.Response, error)
}

// UserObserver is told about authentication transitions: guest to user, user
// to guest, or one user replaced by another. prev or next is nil for a guest.
type UserObserver func(ctx context.Context, prev, next *domain.User)

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Confirm  string
}

type LogoutOptions struct {
	// NotifyServer blacklists the refresh token on the backend, best effort.
	NotifyServer bool
	// KeepError preserves the banner error, used when logout is forced.
	KeepError bool
}

// Manager owns the auth session: tokens, the current profile and the
// refresh-on-401 policy.
type Manager struct {
	api      API
	store    storage.Store
	notifier notify.Notifier
	events   *events.Recorder
	log      *zap.Logger

	mu        sync.RWMutex
	tokens    domain.Tokens
	user      *domain.User
	lastErr   string
	observers []UserObserver

	refreshGroup   singleflight.Group
	refreshTimeout time.Duration
}

const defaultRefreshTimeout = 30 * time.Second

func NewManager(api API, store storage.Store, notifier notify.Notifier, rec *events.Recorder, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		api:      api,
		store:    store,
		notifier: notifier,
		events:   rec,
		log:      log.Named("auth"),

		refreshTimeout: defaultRefreshTimeout,
	}
}

// SetRefreshTimeout bounds a token refresh. The refresh does not inherit the
// deadline of the request that triggered it.
func (m *Manager) SetRefreshTimeout(d time.Duration) {
	if d > 0 {
		m.refreshTimeout = d
	}
}

// OnUserChange registers an observer. Observers run synchronously, in
// registration order, after the session state has been updated.
func (m *Manager) OnUserChange(o UserObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Restore loads persisted tokens and re-fetches the profile. Without a stored
// access token the session stays anonymous. A restored session is not a
// login: observers are not told, the caller loads dependent state itself.
func (m *Manager) Restore(ctx context.Context) error {
	access, err := storage.LoadString(ctx, m.store, storage.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("load access token: %w", err)
	}
	refresh, err := storage.LoadString(ctx, m.store, storage.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	if access == "" {
		return nil
	}

	m.mu.Lock()
	m.tokens = domain.Tokens{Access: access, Refresh: refresh}
	m.mu.Unlock()

	user, err := m.fetchProfile(ctx)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil
		}
		return fmt.Errorf("restore session: %w", err)
	}
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	m.log.Debug("session restored", zap.Int64("user_id", user.ID))
	return nil
}

func (m *Manager) Login(ctx context.Context, identifier, password string) error {
	var tokens domain.Tokens
	_, err := m.api.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Path:        "/token/",
		Body:        map[string]string{"username": identifier, "password": password},
		SkipRefresh: true,
	}, &tokens)
	if err != nil {
		return m.fail(ctx, "login", err)
	}
	return m.establish(ctx, "login", tokens)
}

// LoginWithGoogle exchanges a Google identity credential for API tokens.
func (m *Manager) LoginWithGoogle(ctx context.Context, credential string) error {
	var tokens domain.Tokens
	_, err := m.api.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Path:        "/auth/google/",
		Body:        map[string]string{"token": credential},
		SkipRefresh: true,
	}, &tokens)
	if err != nil {
		return m.fail(ctx, "google login", err)
	}
	return m.establish(ctx, "google login", tokens)
}

func (m *Manager) Register(ctx context.Context, in RegisterInput) error {
	if in.Password != in.Confirm {
		m.setLastErr(msgPasswordMismatch)
		m.notifier.Add(msgPasswordMismatch, domain.SeverityError, 0)
		return ErrPasswordMismatch
	}

	_, err := m.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/register/",
		Body: map[string]string{
			"username":  in.Username,
			"email":     in.Email,
			"password":  in.Password,
			"password2": in.Confirm,
		},
		SkipRefresh: true,
	}, nil)
	if err != nil {
		msg := apiclient.Message(err)
		m.setLastErr(msg)
		m.notifier.Add(msg, domain.SeverityError, 0)
		return fmt.Errorf("register: %w", err)
	}

	m.log.Info("account registered", zap.String("username", in.Username))
	return m.Login(ctx, in.Username, in.Password)
}

// Logout always clears the local session, whatever the server answers.
func (m *Manager) Logout(ctx context.Context, opts LogoutOptions) {
	m.mu.RLock()
	refresh := m.tokens.Refresh
	m.mu.RUnlock()

	if opts.NotifyServer && refresh != "" {
		_, err := m.api.Do(ctx, apiclient.Request{
			Method:      http.MethodPost,
			Path:        "/logout/",
			Body:        map[string]string{"refresh": refresh},
			SkipRefresh: true,
		}, nil)
		if err != nil {
			m.log.Warn("server logout failed, clearing local session anyway", zap.Error(err))
		}
	}

	prev := m.clearSession(ctx)
	if !opts.KeepError {
		m.setLastErr("")
	}
	if prev == nil {
		return
	}

	if opts.NotifyServer {
		m.notifier.Add("You have been logged out", domain.SeverityInfo, 0)
	}
	m.events.Record(ctx, domain.EventUserLoggedOut, actor(prev), nil)
	m.notifyObservers(ctx, prev, nil)
}

// FetchProfile re-reads /me/ and updates the held user.
func (m *Manager) FetchProfile(ctx context.Context) (*domain.User, error) {
	if !m.hasAccessToken() {
		return nil, ErrNotAuthenticated
	}
	user, err := m.fetchProfile(ctx)
	if err != nil {
		return nil, err
	}
	m.setUser(ctx, user)
	return m.User(), nil
}

// AttachBearer is the request interceptor adding the access token to every
// request that does not carry an Authorization header yet.
func (m *Manager) AttachBearer(_ context.Context, req *http.Request) error {
	if req.Header.Get("Authorization") != "" {
		return nil
	}
	m.mu.RLock()
	access := m.tokens.Access
	m.mu.RUnlock()
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	return nil
}

// HandleUnauthorized refreshes the access token once. Concurrent callers
// share a single refresh, which outlives any caller that gives up waiting.
// The session is dropped only when the API rejects the refresh token;
// transport failures leave it in place.
func (m *Manager) HandleUnauthorized(ctx context.Context) (bool, error) {
	m.mu.RLock()
	refresh := m.tokens.Refresh
	m.mu.RUnlock()
	if refresh == "" {
		return false, nil
	}

	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()

		err := m.refresh(rctx, refresh)
		if err == nil {
			return nil, nil
		}
		if !rejected(err) {
			m.log.Warn("token refresh failed, keeping session", zap.Error(err))
			return nil, fmt.Errorf("refresh access token: %w", err)
		}
		m.log.Info("refresh token rejected, forcing logout", zap.Error(err))
		m.Logout(rctx, LogoutOptions{NotifyServer: false, KeepError: true})
		m.setLastErr(msgSessionExpired)
		m.notifier.Add(msgSessionExpired, domain.SeverityWarning, 0)
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// rejected reports whether the API refused the refresh token itself, as
// opposed to the refresh not reaching it.
func rejected(err error) bool {
	if errors.Is(err, errNoAccessToken) {
		return true
	}
	var apiErr *apiclient.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

func (m *Manager) refresh(ctx context.Context, refresh string) error {
	var tokens domain.Tokens
	_, err := m.api.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Path:        "/token/refresh/",
		Body:        map[string]string{"refresh": refresh},
		SkipRefresh: true,
	}, &tokens)
	if err != nil {
		return err
	}
	if tokens.Access == "" {
		return errNoAccessToken
	}
	if tokens.Refresh == "" {
		tokens.Refresh = refresh
	}
	m.setTokens(ctx, tokens)
	m.log.Debug("access token refreshed")
	return nil
}

func (m *Manager) User() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.user.IsSuperuser
}

// LastError is the message for the inline banner of the auth forms.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// TokenExpiry reads the exp claim of the access token. The signature is not
// verified: the client only uses it for display.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	m.mu.RLock()
	access := m.tokens.Access
	m.mu.RUnlock()
	if access == "" {
		return time.Time{}, false
	}

	token, _, err := jwt.NewParser().ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (m *Manager) establish(ctx context.Context, op string, tokens domain.Tokens) error {
	if tokens.Access == "" {
		return m.fail(ctx, op, errors.New("token response without access token"))
	}
	m.setTokens(ctx, tokens)

	user, err := m.fetchProfile(ctx)
	if err != nil {
		return m.fail(ctx, op, err)
	}

	m.setLastErr("")
	m.notifier.Add(fmt.Sprintf("Welcome, %s!", user.Username), domain.SeveritySuccess, 0)
	m.events.Record(ctx, domain.EventUserLoggedIn, actor(user), map[string]any{"method": op})
	m.setUser(ctx, user)
	return nil
}

// fail records a login failure: banner message, toast, and no partial session.
func (m *Manager) fail(ctx context.Context, op string, err error) error {
	msg := apiclient.Message(err)
	if prev := m.clearSession(ctx); prev != nil {
		m.notifyObservers(ctx, prev, nil)
	}
	m.setLastErr(msg)
	m.notifier.Add(msg, domain.SeverityError, 0)
	m.log.Info("authentication failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (m *Manager) fetchProfile(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if _, err := m.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/me/"}, &user); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &user, nil
}

func (m *Manager) setUser(ctx context.Context, user *domain.User) {
	m.mu.Lock()
	prev := m.user
	m.user = user
	m.mu.Unlock()

	if prev == nil || prev.ID != user.ID {
		m.notifyObservers(ctx, prev, user)
	}
}

func (m *Manager) setTokens(ctx context.Context, tokens domain.Tokens) {
	m.mu.Lock()
	m.tokens = tokens
	m.mu.Unlock()

	if err := storage.SaveString(ctx, m.store, storage.KeyAccessToken, tokens.Access); err != nil {
		m.log.Warn("failed to persist access token", zap.Error(err))
	}
	if err := storage.SaveString(ctx, m.store, storage.KeyRefreshToken, tokens.Refresh); err != nil {
		m.log.Warn("failed to persist refresh token", zap.Error(err))
	}
}

// clearSession drops tokens and user and returns the user that was logged in.
func (m *Manager) clearSession(ctx context.Context) *domain.User {
	m.mu.Lock()
	prev := m.user
	m.user = nil
	m.tokens = domain.Tokens{}
	m.mu.Unlock()

	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken} {
		if err := m.store.Delete(ctx, key); err != nil {
			m.log.Warn("failed to clear persisted token", zap.String("key", key), zap.Error(err))
		}
	}
	return prev
}

func (m *Manager) setLastErr(msg string) {
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()
}

func (m *Manager) hasAccessToken() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.Access != ""
}

func (m *Manager) notifyObservers(ctx context.Context, prev, next *domain.User) {
	m.mu.RLock()
	observers := append([]UserObserver(nil), m.observers...)
	m.mu.RUnlock()

	for _, o := range observers {
		o(ctx, prev, next)
	}
}

func actor(u *domain.User) string {
	return "user:" + strconv.FormatInt(u.ID, 10)
}
