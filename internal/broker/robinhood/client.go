// Package robinhood implements model.Broker on Robinhood's crypto endpoints.
//
// Login uses the password grant with an optional TOTP code. Orders are GTC
// limit orders carrying a fresh ref_id so a retried request cannot create a
// second order.
package robinhood

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptoagent/internal/model"
)

const (
	defaultAPIRoot    = "https://api.robinhood.com"
	defaultNummusRoot = "https://nummus.robinhood.com"
	clientID          = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"
	quoteCurrency     = "USD"
)

var (
	ErrNotLoggedIn   = errors.New("robinhood: not logged in")
	ErrUnknownSymbol = errors.New("robinhood: unknown symbol")
	ErrRejected      = errors.New("robinhood: order rejected")
)

type host int

const (
	hostAPI host = iota
	hostNummus
)

type route struct {
	host host
	path string
}

var routes = map[string]route{
	"auth.token":       {hostAPI, "/oauth2/token/"},
	"accounts":         {hostAPI, "/accounts/"},
	"crypto.accounts":  {hostNummus, "/accounts/"},
	"crypto.pairs":     {hostNummus, "/currency_pairs/"},
	"crypto.orders":    {hostNummus, "/orders/"},
	"crypto.order.cxl": {hostNummus, "/orders/%s/cancel/"},
}

// Config configures the client.
type Config struct {
	Username   string
	Password   string
	TOTPSecret string // base32 secret; empty skips MFA

	APIRoot    string        // default: https://api.robinhood.com
	NummusRoot string        // default: https://nummus.robinhood.com
	Timeout    time.Duration // default: 15s
}

// Client is a logged-in Robinhood crypto client. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	newRefID   func() string

	mu        sync.Mutex
	token     string
	accountID string
	pairs     map[string]currencyPair // by asset code, e.g. "ETH"
	pairByID  map[string]string       // currency pair id -> asset code
}

var _ model.Broker = (*Client)(nil)

// New creates a client. Call Login before use.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIRoot == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	if cfg.NummusRoot == "" {
		cfg.NummusRoot = defaultNummusRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.APIRoot = strings.TrimRight(cfg.APIRoot, "/")
	cfg.NummusRoot = strings.TrimRight(cfg.NummusRoot, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "robinhood"),
		now:        time.Now,
		newRefID:   func() string { return uuid.NewString() },
	}
}

// ---- Helpers ----

func (c *Client) buildURL(name string, args ...any) (string, error) {
	r, ok := routes[name]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", name)
	}
	root := c.cfg.APIRoot
	if r.host == hostNummus {
		root = c.cfg.NummusRoot
	}
	p := r.path
	if len(args) > 0 {
		p = fmt.Sprintf(p, args...)
	}
	return root + p, nil
}

// doRequest sends a JSON request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, name string, body, out any, args ...any) error {
	reqURL, err := c.buildURL(name, args...)
	if err != nil {
		return err
	}
	return c.doURL(ctx, method, name, reqURL, body, out)
}

// doURL is doRequest for an absolute URL, such as a pagination link.
func (c *Client) doURL(ctx context.Context, method, name, reqURL string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("robinhood %s: marshal: %w", name, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("robinhood %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("robinhood %s: read body: %w", name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Route: name, Status: resp.StatusCode, Body: truncate(string(raw), 300)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("robinhood %s: couldn't parse JSON response: %w", name, err)
	}
	return nil
}

// APIError is a non-2xx response.
type APIError struct {
	Route  string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("robinhood %s: status %d: %s", e.Route, e.Status, e.Body)
}

// IsRefusal reports errors where Robinhood answered but declined the request,
// as opposed to being unreachable or failing. Auth and rate-limit answers
// are not refusals.
func IsRefusal(err error) bool {
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrUnknownSymbol) {
		return true
	}
	var api *APIError
	if !errors.As(err, &api) {
		return false
	}
	switch api.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return api.Status >= 400 && api.Status < 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Client) requireLogin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.accountID == "" {
		return ErrNotLoggedIn
	}
	return nil
}
