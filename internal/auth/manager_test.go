package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/storage"
)

type recordingNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (r *recordingNotifier) Add(message string, severity domain.Severity, ttl time.Duration) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, domain.Notification{Message: message, Severity: severity, TTL: ttl})
	return ""
}

func (r *recordingNotifier) last() domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return domain.Notification{}
	}
	return r.items[len(r.items)-1]
}

// fakeBackend emulates the token endpoints of the storefront API.
type fakeBackend struct {
	mu            sync.Mutex
	validAccess   string
	refreshOK     bool
	refreshCalls  atomic.Int32
	refreshDelay  atomic.Int64
	refreshStatus atomic.Int32
	logoutCalls   atomic.Int32
	registerBody  map[string]string
	registerError string
}

func (b *fakeBackend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		if r.URL.Path == "/api/token/refresh/" {
			time.Sleep(time.Duration(b.refreshDelay.Load()))
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		switch r.URL.Path {
		case "/api/token/":
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail": "No active account found with the given credentials"}`))
				return
			}
			b.validAccess = "access-1"
			json.NewEncoder(w).Encode(domain.Tokens{Access: "access-1", Refresh: "refresh-1"})
		case "/api/auth/google/":
			b.validAccess = "access-g"
			json.NewEncoder(w).Encode(domain.Tokens{Access: "access-g", Refresh: "refresh-g"})
		case "/api/token/refresh/":
			b.refreshCalls.Add(1)
			if status := b.refreshStatus.Load(); status != 0 {
				w.WriteHeader(int(status))
				return
			}
			if !b.refreshOK || body["refresh"] == "" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail": "Token is invalid or expired", "code": "token_not_valid"}`))
				return
			}
			b.validAccess = "access-2"
			json.NewEncoder(w).Encode(map[string]string{"access": "access-2"})
		case "/api/register/":
			b.registerBody = body
			if b.registerError != "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(b.registerError))
				return
			}
			w.WriteHeader(http.StatusCreated)
		case "/api/logout/":
			b.logoutCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/me/", "/api/cart/":
			if r.Header.Get("Authorization") != "Bearer "+b.validAccess || b.validAccess == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(domain.User{ID: 7, Username: "ana", Email: "ana@example.com", IsSuperuser: true})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func setupManager(t *testing.T, backend *fakeBackend) (*Manager, *apiclient.Client, *recordingNotifier, storage.Store) {
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	client, err := apiclient.New(apiclient.Options{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second})
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	m := NewManager(client, store, notifier, nil, nil)
	client.Use(m.AttachBearer)
	client.OnUnauthorized(m)
	return m, client, notifier, store
}

func TestLogin_Success(t *testing.T) {
	m, _, notifier, store := setupManager(t, &fakeBackend{})

	var transitions []string
	m.OnUserChange(func(_ context.Context, prev, next *domain.User) {
		transitions = append(transitions, describe(prev)+"->"+describe(next))
	})

	require.NoError(t, m.Login(context.Background(), "ana", "secret"))

	require.NotNil(t, m.User())
	assert.Equal(t, "ana", m.User().Username)
	assert.True(t, m.IsAuthenticated())
	assert.True(t, m.IsAdmin())
	assert.Empty(t, m.LastError())
	assert.Equal(t, domain.SeveritySuccess, notifier.last().Severity)
	assert.Equal(t, []string{"guest->ana"}, transitions)

	access, err := storage.LoadString(context.Background(), store, storage.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-1", access)
}

func TestLogin_FailureNormalizesAndClears(t *testing.T) {
	m, _, notifier, store := setupManager(t, &fakeBackend{})

	err := m.Login(context.Background(), "ana", "wrong")
	require.Error(t, err)
	assert.True(t, apiclient.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, "No active account found with the given credentials", m.LastError())
	assert.Equal(t, domain.SeverityError, notifier.last().Severity)
	assert.Nil(t, m.User())

	_, err = store.Get(context.Background(), storage.KeyAccessToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoginWithGoogle(t *testing.T) {
	m, _, _, _ := setupManager(t, &fakeBackend{})

	require.NoError(t, m.LoginWithGoogle(context.Background(), "google-credential"))
	assert.True(t, m.IsAuthenticated())
}

func TestRegister_LogsInAfterwards(t *testing.T) {
	backend := &fakeBackend{}
	m, _, _, _ := setupManager(t, backend)

	err := m.Register(context.Background(), RegisterInput{
		Username: "ana", Email: "ana@example.com", Password: "secret", Confirm: "secret",
	})
	require.NoError(t, err)
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "ana@example.com", backend.registerBody["email"])
	assert.Equal(t, "secret", backend.registerBody["password2"])
}

func TestRegister_FieldErrors(t *testing.T) {
	backend := &fakeBackend{registerError: `{"username": ["ya existe"]}`}
	m, _, notifier, _ := setupManager(t, backend)

	err := m.Register(context.Background(), RegisterInput{Username: "ana", Password: "secret", Confirm: "secret"})
	require.Error(t, err)
	assert.Contains(t, m.LastError(), "Username: ya existe")
	assert.Contains(t, notifier.last().Message, "Username: ya existe")
	assert.False(t, m.IsAuthenticated())
}

func TestRegister_PasswordMismatch(t *testing.T) {
	backend := &fakeBackend{}
	m, _, _, _ := setupManager(t, backend)

	err := m.Register(context.Background(), RegisterInput{Username: "ana", Password: "a", Confirm: "b"})
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Nil(t, backend.registerBody, "nothing is posted on a local mismatch")
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	backend := &fakeBackend{}
	m, _, _, store := setupManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "ana", "secret"))

	var loggedOut bool
	m.OnUserChange(func(_ context.Context, prev, next *domain.User) {
		loggedOut = prev != nil && next == nil
	})

	m.Logout(context.Background(), LogoutOptions{NotifyServer: true})

	assert.Equal(t, int32(1), backend.logoutCalls.Load())
	assert.False(t, m.IsAuthenticated())
	assert.True(t, loggedOut)
	_, err := store.Get(context.Background(), storage.KeyRefreshToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnauthorized_RefreshSucceedsTransparently(t *testing.T) {
	backend := &fakeBackend{refreshOK: true}
	m, client, _, store := setupManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "ana", "secret"))

	// the backend rotates keys: the current access token is no longer accepted
	backend.mu.Lock()
	backend.validAccess = "rotated"
	backend.mu.Unlock()

	// the refresh endpoint issues access-2, which the backend then accepts
	var user domain.User
	_, err := client.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/cart/"}, &user)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.True(t, m.IsAuthenticated())

	access, err := storage.LoadString(context.Background(), store, storage.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)
	refresh, err := storage.LoadString(context.Background(), store, storage.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", refresh, "refresh token kept when not rotated")
}

func TestUnauthorized_RefreshFailureForcesLogout(t *testing.T) {
	backend := &fakeBackend{refreshOK: false}
	m, client, notifier, _ := setupManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "ana", "secret"))

	backend.mu.Lock()
	backend.validAccess = "rotated"
	backend.mu.Unlock()

	_, err := client.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/cart/"}, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, msgSessionExpired, m.LastError())
	assert.Equal(t, domain.SeverityWarning, notifier.last().Severity)
}

func TestUnauthorized_CallerDeadlineDoesNotDropSession(t *testing.T) {
	backend := &fakeBackend{refreshOK: true}
	m, client, notifier, store := setupManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "ana", "secret"))

	backend.mu.Lock()
	backend.validAccess = "rotated"
	backend.mu.Unlock()
	backend.refreshDelay.Store(int64(300 * time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/cart/"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.True(t, m.IsAuthenticated())
	assert.Empty(t, m.LastError())

	// the refresh completes in the background and its tokens are kept
	assert.Eventually(t, func() bool {
		access, err := storage.LoadString(context.Background(), store, storage.KeyAccessToken)
		return err == nil && access == "access-2"
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, m.IsAuthenticated())
	assert.NotEqual(t, msgSessionExpired, notifier.last().Message)
}

func TestUnauthorized_RefreshServerErrorKeepsSession(t *testing.T) {
	backend := &fakeBackend{refreshOK: true}
	m, client, _, store := setupManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "ana", "secret"))

	backend.mu.Lock()
	backend.validAccess = "rotated"
	backend.mu.Unlock()
	backend.refreshStatus.Store(http.StatusBadGateway)

	_, err := client.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/cart/"}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.True(t, apiclient.IsStatus(err, http.StatusBadGateway))
	assert.True(t, m.IsAuthenticated())

	refresh, err := storage.LoadString(context.Background(), store, storage.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", refresh)
}

func TestUnauthorized_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	backend := &fakeBackend{refreshOK: true}
	m, client, _, _ := setupManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "ana", "secret"))

	backend.mu.Lock()
	backend.validAccess = "rotated"
	backend.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/cart/"}, nil)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, backend.refreshCalls.Load(), int32(5))
	assert.GreaterOrEqual(t, backend.refreshCalls.Load(), int32(1))
	assert.True(t, m.IsAuthenticated())
}

func TestUnauthorized_GuestDoesNotRefresh(t *testing.T) {
	backend := &fakeBackend{refreshOK: true}
	_, client, _, _ := setupManager(t, backend)

	_, err := client.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/cart/"}, nil)
	assert.True(t, apiclient.IsStatus(err, http.StatusUnauthorized))
	assert.Zero(t, backend.refreshCalls.Load())
}

func TestRestore(t *testing.T) {
	backend := &fakeBackend{validAccess: "stored"}
	m, _, _, store := setupManager(t, backend)
	ctx := context.Background()

	// legacy raw values written by the web front-end
	require.NoError(t, store.Set(ctx, storage.KeyAccessToken, []byte("stored")))
	require.NoError(t, store.Set(ctx, storage.KeyRefreshToken, []byte("refresh-x")))

	notified := 0
	m.OnUserChange(func(context.Context, *domain.User, *domain.User) { notified++ })

	require.NoError(t, m.Restore(ctx))
	require.NotNil(t, m.User())
	assert.Equal(t, int64(7), m.User().ID)
	assert.Zero(t, notified, "a restored session is not a login")
}

func TestRestore_ExpiredSessionBecomesGuest(t *testing.T) {
	backend := &fakeBackend{validAccess: "something-else", refreshOK: false}
	m, _, _, store := setupManager(t, backend)
	ctx := context.Background()
	require.NoError(t, storage.SaveString(ctx, store, storage.KeyAccessToken, "stale"))
	require.NoError(t, storage.SaveString(ctx, store, storage.KeyRefreshToken, "stale-refresh"))

	require.NoError(t, m.Restore(ctx))
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
}

func TestRestore_NoTokens(t *testing.T) {
	m, _, _, _ := setupManager(t, &fakeBackend{})
	require.NoError(t, m.Restore(context.Background()))
	assert.False(t, m.IsAuthenticated())

	_, err := m.FetchProfile(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAttachBearer_KeepsExistingHeader(t *testing.T) {
	m := NewManager(nil, storage.NewMemoryStore(), &recordingNotifier{}, nil, nil)
	m.tokens = domain.Tokens{Access: "mine"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, m.AttachBearer(context.Background(), req))
	assert.Equal(t, "Bearer mine", req.Header.Get("Authorization"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer other")
	require.NoError(t, m.AttachBearer(context.Background(), req))
	assert.Equal(t, "Bearer other", req.Header.Get("Authorization"))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	m := NewManager(nil, storage.NewMemoryStore(), &recordingNotifier{}, nil, nil)
	_, ok := m.TokenExpiry()
	assert.False(t, ok)

	m.tokens = domain.Tokens{Access: signed}
	got, ok := m.TokenExpiry()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	m.tokens = domain.Tokens{Access: strings.Repeat("x", 10)}
	_, ok = m.TokenExpiry()
	assert.False(t, ok)
}

func describe(u *domain.User) string {
	if u == nil {
		return "guest"
	}
	return u.Username
}
