package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// RequestInterceptor may decorate every outgoing request, e.g. with a bearer
// token or the guest cart session key.
type RequestInterceptor func(ctx context.Context, req *http.Request) error

// UnauthorizedHandler is consulted once per request after a 401. Returning
// true replays the original request a single time.
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context) (bool, error)
}

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Transport       http.RoundTripper
	Logger          *zap.Logger
}

type Response struct {
	StatusCode int
	Header     http.Header
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*rawResponse]
	log     *zap.Logger

	mu           sync.RWMutex
	interceptors []RequestInterceptor
	unauthorized UnauthorizedHandler
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

// errServerStatus marks 5xx answers as breaker failures while still
// returning the response to the caller.
var errServerStatus = errors.New("server error status")

func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		log: log.Named("apiclient"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:    "storefront-api",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c, nil
}

// Use appends a request interceptor. Interceptors run in registration order.
func (c *Client) Use(i RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = append(c.interceptors, i)
}

func (c *Client) OnUnauthorized(h UnauthorizedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unauthorized = h
}

// Do sends req and decodes a successful JSON body into out when out is not
// nil. Non-2xx answers are returned as *APIError together with the response
// metadata, so callers can still read headers.
func (c *Client) Do(ctx context.Context, req Request, out any) (*Response, error) {
	raw, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if raw.status == http.StatusUnauthorized && !req.SkipRefresh {
		c.mu.RLock()
		handler := c.unauthorized
		c.mu.RUnlock()

		if handler != nil {
			retry, herr := handler.HandleUnauthorized(ctx)
			if herr != nil {
				return &Response{StatusCode: raw.status, Header: raw.header}, herr
			}
			if retry {
				replay := req
				replay.SkipRefresh = true
				replay.Header = req.Header.Clone()
				if replay.Header != nil {
					replay.Header.Del("Authorization")
				}
				c.log.Debug("replaying request after token refresh",
					zap.String("method", req.Method), zap.String("path", req.Path))
				if raw, err = c.send(ctx, replay); err != nil {
					return nil, err
				}
			}
		}
	}

	resp := &Response{StatusCode: raw.status, Header: raw.header}
	if raw.status < 200 || raw.status >= 300 {
		return resp, newAPIError(raw.status, raw.body)
	}

	if out != nil && len(raw.body) > 0 {
		if err := json.Unmarshal(raw.body, out); err != nil {
			return resp, fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req Request) (*rawResponse, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	interceptors := c.interceptors
	c.mu.RUnlock()
	for _, intercept := range interceptors {
		if err := intercept(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("request interceptor: %w", err)
		}
	}

	start := time.Now()
	raw, err := c.breaker.Execute(func() (*rawResponse, error) {
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		raw := &rawResponse{status: resp.StatusCode, header: resp.Header, body: body}
		if resp.StatusCode >= 500 {
			return raw, errServerStatus
		}
		return raw, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, ErrServiceUnavailable)
	case errors.Is(err, errServerStatus):
	case err != nil:
		c.log.Debug("request failed",
			zap.String("method", req.Method), zap.String("path", req.Path), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}

	c.log.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", raw.status),
		zap.Duration("elapsed", time.Since(start)))
	return raw, nil
}
