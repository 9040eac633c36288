package storage

import (
	"context"
	"errors"
)

// Keys persisted by the storefront client. The names match the browser
// localStorage keys so a state dump can be compared with the web front-end.
const (
	KeyAccessToken    = "accessToken"
	KeyRefreshToken   = "refreshToken"
	KeyCartSessionKey = "cartSessionKey"
	KeyFavoriteIDs    = "chibi_fav_ids"
)

var ErrNotFound = errors.New("key not found")

// Store is a small key/value store standing in for browser local storage.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
