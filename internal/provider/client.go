// Package provider fetches raw fiscal-document payloads from external
// providers. It owns the retry policy, the failure taxonomy and the
// anti-SSRF host allow-list; callers only ever see a map tree or a
// categorized *Error.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"economiza/internal/platform/config"
	"economiza/internal/platform/metrics"
)

// Provider names accepted by configuration. "fake" serves fixtures with no
// network I/O at all.
const (
	NameFake     = "fake"
	NameWebmania = "webmania"
	NameSerpro   = "serpro"
	NameOobj     = "oobj"
)

const maxAttempts = 3

var urlKeyPattern = regexp.MustCompile(`(?:^|[^\d])(\d{44})(?:[^\d]|$)`)

// Client fetches documents from the single provider selected at startup.
// Construct one per process and inject it; it is safe for concurrent use.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	allowList  *AllowList
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// backoffBase is the first retry delay; tests shrink it.
	backoffBase time.Duration
}

// New validates the provider configuration and builds a client.
func New(cfg config.ProviderConfig, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	name := cfg.Name
	if name == "" {
		name = NameFake
	}
	switch name {
	case NameFake, NameWebmania, NameSerpro, NameOobj:
	default:
		return nil, NewError(CategoryConfig, name, "unknown provider", nil)
	}
	if name != NameFake && (cfg.BaseURL == "" || cfg.APIKey == "") {
		return nil, NewError(CategoryConfig, name, "base url and api key are required", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		name:        name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: timeout},
		allowList:   NewAllowList(cfg.ExtraAllowedDomains),
		logger:      logger,
		metrics:     m,
		backoffBase: time.Second,
	}, nil
}

// Name returns the active provider name.
func (c *Client) Name() string {
	return c.name
}

// FetchByURL resolves a consultation URL. The URL is never dereferenced:
// after the allow-list check, the 44-digit access key embedded in it is
// extracted and the lookup goes through FetchByKey. That makes URL handling
// key extraction rather than proxying, which removes most SSRF surface by
// construction.
func (c *Client) FetchByURL(ctx context.Context, rawURL string) (map[string]any, error) {
	if len(rawURL) > 500 {
		return nil, NewError(CategorySecurity, c.name, "url too long", nil)
	}
	if err := c.allowList.Validate(rawURL); err != nil {
		c.logger.WarnContext(ctx, "blocked fetch of disallowed url",
			"url_length", len(rawURL),
			"error", err.Error(),
		)
		c.metrics.RecordProviderRequest(c.name, "blocked")
		return nil, err
	}
	m := urlKeyPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, NewError(CategoryNotFound, c.name, "url carries no 44-digit access key", nil)
	}
	return c.FetchByKey(ctx, m[1])
}

// FetchByKey fetches the raw document for an access key, retrying transient
// failures with exponential backoff. In fake mode it returns the fixture
// without touching the network.
func (c *Client) FetchByKey(ctx context.Context, key string) (map[string]any, error) {
	if c.name == NameFake {
		c.logger.DebugContext(ctx, "serving fixture payload", "provider", c.name)
		c.metrics.RecordProviderRequest(c.name, "fixture")
		return fixturePayload(key), nil
	}

	backoff := c.backoffBase
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		payload, err := c.doFetch(ctx, key)
		if err == nil {
			c.metrics.RecordProviderRequest(c.name, "ok")
			return payload, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			c.metrics.RecordProviderRequest(c.name, string(CategoryOf(err)))
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}
		c.logger.WarnContext(ctx, "provider fetch failed, retrying",
			"provider", c.name,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, NewError(CategoryTransient, c.name, "context cancelled during backoff", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	c.metrics.RecordProviderRequest(c.name, string(CategoryTransient))
	return nil, lastErr
}

// doFetch performs one attempt: build the provider-specific request, issue
// it, classify the status code and decode the body.
func (c *Client) doFetch(ctx context.Context, key string) (map[string]any, error) {
	req, err := c.buildRequest(ctx, key)
	if err != nil {
		return nil, NewError(CategoryConfig, c.name, "build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, NewError(CategoryTransient, c.name, "request timed out", err)
		}
		return nil, NewError(CategoryTransient, c.name, "transport failure", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(CategoryTransient, c.name, "read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewError(CategoryUnauthorized, c.name, "provider rejected credentials", nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewError(CategoryNotFound, c.name, "document not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewError(CategoryRateLimited, c.name, "provider rate limit hit", nil)
	case resp.StatusCode >= 500:
		return nil, NewError(CategoryTransient, c.name, fmt.Sprintf("provider returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 300:
		return nil, NewError(CategoryTransient, c.name, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	payload, err := c.decodeBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}
	if embedded := c.embeddedError(payload); embedded != nil {
		return nil, embedded
	}
	return payload, nil
}

// buildRequest encodes each provider's endpoint and auth convention.
func (c *Client) buildRequest(ctx context.Context, key string) (*http.Request, error) {
	switch c.name {
	case NameWebmania:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nfe/"+key, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	case NameSerpro:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/consulta/nfce/"+key, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-Key", c.apiKey)
		return req, nil
	case NameOobj:
		body, err := json.Marshal(map[string]string{"chave": key})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/nfe/consulta", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	default:
		return nil, fmt.Errorf("provider %s does not issue requests", c.name)
	}
}

// decodeBody classifies the body as XML or JSON and produces one tree shape.
func (c *Client) decodeBody(contentType string, body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if strings.Contains(strings.ToLower(contentType), "xml") || bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<")) {
		payload, err := xmlToMap(trimmed)
		if err != nil {
			return nil, NewError(CategoryTransient, c.name, "malformed xml response", err)
		}
		return payload, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		// Some providers answer plain text on partial outages. Surface it
		// as-is so the parser can reject it with context.
		return map[string]any{"raw": string(trimmed)}, nil
	}
	return payload, nil
}

// embeddedError translates an in-band provider error object into the
// taxonomy. Providers answer 200 with {"erro": "..."} on some failures.
func (c *Client) embeddedError(payload map[string]any) *Error {
	for _, field := range []string{"erro", "error"} {
		raw, ok := payload[field]
		if !ok {
			continue
		}
		message := ""
		switch v := raw.(type) {
		case string:
			message = v
		case map[string]any:
			for _, mk := range []string{"mensagem", "message", "msg"} {
				if s, ok := v[mk].(string); ok && s != "" {
					message = s
					break
				}
			}
		default:
			continue
		}
		if message == "" {
			continue
		}
		lower := strings.ToLower(message)
		for _, phrase := range []string{"não encontrada", "nao encontrada", "não localizada", "nao localizada", "not found", "inexistente"} {
			if strings.Contains(lower, phrase) {
				return NewError(CategoryNotFound, c.name, message, nil)
			}
		}
		return NewError(CategoryTransient, c.name, message, nil)
	}
	return nil
}

func isTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}
