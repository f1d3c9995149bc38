package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

const maxBodyBytes = 1 << 20

// restClient holds what every REST adapter shares: identity, ticker map,
// pacing and the HTTP plumbing that maps transport problems onto the
// domain fetch errors.
type restClient struct {
	name        string
	baseURL     string
	apiKey      string
	symbols     map[domain.Symbol]string
	minInterval time.Duration
	httpClient  *http.Client
	clock       clock.Clock
}

func newRESTClient(cfg Config, kind, defaultURL string, defaultInterval time.Duration, clk clock.Clock) restClient {
	name := cfg.Name
	if name == "" {
		name = kind
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultURL
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	symbols := make(map[domain.Symbol]string)
	src := cfg.Symbols
	if len(src) == 0 {
		src = defaultSymbols(kind)
	}
	for k, v := range src {
		symbols[domain.ParseSymbol(string(k))] = v
	}
	return restClient{
		name:        name,
		baseURL:     base,
		apiKey:      cfg.APIKey,
		symbols:     symbols,
		minInterval: interval,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		clock:       clk,
	}
}

func (c *restClient) Name() string               { return c.name }
func (c *restClient) MinInterval() time.Duration { return c.minInterval }

func (c *restClient) Supports(symbol domain.Symbol) bool {
	_, ok := c.symbols[symbol]
	return ok
}

func (c *restClient) ticker(symbol domain.Symbol) (string, error) {
	t, ok := c.symbols[symbol]
	if !ok {
		return "", c.fail(symbol, domain.ErrUnsupportedSymbol, "no ticker mapping")
	}
	return t, nil
}

func (c *restClient) fail(symbol domain.Symbol, kind error, detail string) error {
	return &domain.FetchError{Source: c.name, Symbol: symbol, Err: kind, Detail: detail}
}

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

// get performs a GET and classifies transport failures. Non-2xx statuses are
// returned to the caller untouched except 429/418 (rate limited) and 5xx
// (network), which mean the same thing for every provider.
func (c *restClient) get(ctx context.Context, symbol domain.Symbol, path string, header http.Header) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return response{}, c.fail(symbol, domain.ErrNetwork, "create request: "+err.Error())
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, c.transportError(ctx, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, c.transportError(ctx, symbol, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		return response{}, c.fail(symbol, domain.ErrRateLimited, fmt.Sprintf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return response{}, c.fail(symbol, domain.ErrNetwork, fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(body)))
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func (c *restClient) transportError(ctx context.Context, symbol domain.Symbol, err error) error {
	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return c.fail(symbol, domain.ErrTimeout, err.Error())
	}
	return c.fail(symbol, domain.ErrNetwork, err.Error())
}

func (c *restClient) unexpectedStatus(symbol domain.Symbol, r response) error {
	return c.fail(symbol, domain.ErrNetwork, fmt.Sprintf("status %d: %s", r.status, snippet(r.body)))
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
