// Package favorites keeps the set of favorited product ids. Guests keep the
// list in local state; signed-in users mirror the remote /favoritos/ list.
package favorites

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/events"
	"github.com/fjod/chibi-storefront/internal/notify"
	"github.com/fjod/chibi-storefront/internal/storage"
)

const favoritesPath = "/favoritos/"

type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) (*apiclient.Response, error)
}

type Session interface {
	IsAuthenticated() bool
	User() *domain.User
}

type Options struct {
	// MergeGuestOnLogin copies guest-only favorites into the account on login.
	MergeGuestOnLogin bool
}

type Manager struct {
	api      API
	store    storage.Store
	session  Session
	notifier notify.Notifier
	events   *events.Recorder
	log      *zap.Logger
	opts     Options

	mu    sync.RWMutex
	ids   []int64
	index map[int64]struct{}
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
		log:      log.Named("favorites"),
		opts:     opts,
		index:    map[int64]struct{}{},
	}
}

// Load replaces the set from the remote list or the guest list.
func (m *Manager) Load(ctx context.Context) error {
	var (
		ids []int64
		err error
	)
	if m.isAuthenticated() {
		ids, err = m.fetchRemote(ctx)
	} else {
		ids, err = m.loadGuest(ctx)
	}
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	m.replace(ids)
	return nil
}

// Toggle flips id and reports whether it is now a favorite.
func (m *Manager) Toggle(ctx context.Context, id int64) (bool, error) {
	if m.isAuthenticated() {
		_, err := m.api.Do(ctx, apiclient.Request{
			Method: http.MethodPost,
			Path:   favoritesPath,
			Body:   map[string]int64{"producto": id},
		}, nil)
		if err != nil {
			m.notifier.Add(apiclient.Message(err), domain.SeverityError, 0)
			return m.IsFavorite(id), fmt.Errorf("toggle favorite %d: %w", id, err)
		}
	}

	added := m.flip(id)
	if !m.isAuthenticated() {
		if err := storage.Save(ctx, m.store, storage.KeyFavoriteIDs, storage.IDListSchema, m.IDs()); err != nil {
			m.log.Warn("failed to persist guest favorites", zap.Error(err))
		}
	}

	if added {
		m.notifier.Add("Added to favorites", domain.SeveritySuccess, 0)
	} else {
		m.notifier.Add("Removed from favorites", domain.SeverityInfo, 0)
	}
	m.events.Record(ctx, domain.EventFavoriteToggled, m.currentActor(), map[string]any{
		"product_id": id,
		"favorite":   added,
	})
	return added, nil
}

func (m *Manager) IsFavorite(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[id]
	return ok
}

// IDs returns the favorites in the order they were added.
func (m *Manager) IDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64{}, m.ids...)
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// HandleUserChange reloads the set on every auth transition, then merges the
// guest list into the account on login when configured.
func (m *Manager) HandleUserChange(ctx context.Context, _, next *domain.User) {
	if err := m.Load(ctx); err != nil {
		m.log.Warn("favorites reload failed", zap.Error(err))
		return
	}
	if next != nil && m.opts.MergeGuestOnLogin {
		m.mergeGuest(ctx)
	}
}

func (m *Manager) mergeGuest(ctx context.Context) {
	guest, err := m.loadGuest(ctx)
	if err != nil {
		m.log.Warn("reading guest favorites failed", zap.Error(err))
		return
	}
	merged := 0
	for _, id := range guest {
		if m.IsFavorite(id) {
			continue
		}
		_, err := m.api.Do(ctx, apiclient.Request{
			Method: http.MethodPost,
			Path:   favoritesPath,
			Body:   map[string]int64{"producto": id},
		}, nil)
		if err != nil {
			m.log.Warn("merging guest favorite failed", zap.Int64("product_id", id), zap.Error(err))
			continue
		}
		m.flip(id)
		merged++
	}
	if err := m.store.Delete(ctx, storage.KeyFavoriteIDs); err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn("failed to clear guest favorites", zap.Error(err))
	}
	m.log.Info("guest favorites merged", zap.Int("merged", merged), zap.Int("guest", len(guest)))
}

func (m *Manager) fetchRemote(ctx context.Context) ([]int64, error) {
	var entries []json.RawMessage
	if _, err := m.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: favoritesPath}, &entries); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(entries))
	for _, raw := range entries {
		id, err := parseEntry(raw)
		if err != nil {
			m.log.Debug("skipping unreadable favorite entry", zap.ByteString("entry", raw), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseEntry accepts a bare id, {"producto": id} or {"producto": {"id": id}}.
func parseEntry(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var obj struct {
			Product json.RawMessage `json:"producto"`
			ID      *int64          `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, err
		}
		if len(obj.Product) == 0 {
			if obj.ID != nil {
				return *obj.ID, nil
			}
			return 0, errors.New("favorite entry without producto")
		}
		return parseEntry(obj.Product)
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	}
	var id int64
	err := json.Unmarshal(raw, &id)
	return id, err
}

func (m *Manager) loadGuest(ctx context.Context) ([]int64, error) {
	ids, _, err := storage.Load[[]int64](ctx, m.store, storage.KeyFavoriteIDs, storage.IDListSchema)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) replace(ids []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = m.ids[:0]
	m.index = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := m.index[id]; dup {
			continue
		}
		m.index[id] = struct{}{}
		m.ids = append(m.ids, id)
	}
}

func (m *Manager) flip(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[id]; ok {
		delete(m.index, id)
		for i, v := range m.ids {
			if v == id {
				m.ids = append(m.ids[:i], m.ids[i+1:]...)
				break
			}
		}
		return false
	}
	m.index[id] = struct{}{}
	m.ids = append(m.ids, id)
	return true
}

func (m *Manager) isAuthenticated() bool {
	return m.session != nil && m.session.IsAuthenticated()
}

func (m *Manager) currentActor() string {
	if m.session != nil {
		if u := m.session.User(); u != nil {
			return "user:" + strconv.FormatInt(u.ID, 10)
		}
	}
	return "guest"
}
