// Package catalog reads the product listing and exposes the admin product
// operations.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/apiclient"
	"github.com/fjod/chibi-storefront/internal/domain"
	"github.com/fjod/chibi-storefront/internal/notify"
)

const productsPath = "/productos/"

type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) (*apiclient.Response, error)
}

// Authorizer gates the admin operations.
type Authorizer interface {
	IsAdmin() bool
}

type Provider struct {
	api      API
	auth     Authorizer
	notifier notify.Notifier
	log      *zap.Logger
	pageSize int

	seq atomic.Uint64

	mu       sync.RWMutex
	products []domain.Product
	count    int
	loading  bool
	lastErr  string
}

func NewProvider(api API, auth Authorizer, notifier notify.Notifier, pageSize int, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Provider{
		api:      api,
		auth:     auth,
		notifier: notifier,
		log:      log.Named("catalog"),
		pageSize: pageSize,
	}
}

// Fetch loads one page of products. Only the most recently issued fetch
// replaces the held listing; an older response is still returned to its
// caller.
func (p *Provider) Fetch(ctx context.Context, q Query) (*domain.ProductPage, error) {
	seq := p.seq.Add(1)
	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()

	page, err := p.fetchPage(ctx, q)

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq != p.seq.Load() {
		p.log.Debug("discarding stale product listing", zap.Uint64("seq", seq))
		return page, err
	}
	p.loading = false
	if err != nil {
		p.lastErr = apiclient.Message(err)
		return nil, err
	}
	p.products = page.Results
	p.count = page.Count
	p.lastErr = ""
	return page, nil
}

func (p *Provider) fetchPage(ctx context.Context, q Query) (*domain.ProductPage, error) {
	var raw json.RawMessage
	_, err := p.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   productsPath,
		Query:  q.Values(p.pageSize),
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	page, err := decodePage[domain.Product](raw)
	if err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return &domain.ProductPage{Count: page.Count, Next: page.Next, Previous: page.Previous, Results: page.Results}, nil
}

type pageOf[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// decodePage accepts a paginated envelope or a bare list.
func decodePage[T any](raw json.RawMessage) (pageOf[T], error) {
	var page pageOf[T]
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &page.Results); err != nil {
			return page, err
		}
		page.Count = len(page.Results)
		return page, nil
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return page, err
	}
	if page.Results == nil {
		page.Results = []T{}
	}
	return page, nil
}

func (p *Provider) Get(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	if _, err := p.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: productPath(id)}, &product); err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &product, nil
}

func (p *Provider) Categories(ctx context.Context) ([]domain.Category, error) {
	var raw json.RawMessage
	if _, err := p.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/categorias/"}, &raw); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	page, err := decodePage[domain.Category](raw)
	if err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return page.Results, nil
}

func (p *Provider) Products() []domain.Product {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Product(nil), p.products...)
}

// Count is the total number of products matching the last query.
func (p *Provider) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count
}

func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) LastError() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func productPath(id int64) string {
	return productsPath + strconv.FormatInt(id, 10) + "/"
}
