package chains

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/dukex/graphroute/pkg/template"
)

const defaultHTTPTimeout = 30 * time.Second

var ErrHTTPStatus = errors.New("unexpected HTTP status")

func NewHTTPRequestChainFactory() *HTTPRequestChainFactory {
	return &HTTPRequestChainFactory{client: &http.Client{Timeout: defaultHTTPTimeout}}
}

type HTTPRequestChainFactory struct {
	client *http.Client
}

func (*HTTPRequestChainFactory) ID() string {
	return "http-request"
}

// Create reads url, method, headers, body, retry {attempts, delay} and
// result_variable. The url, header values and body are templates rendered
// against the route document.
func (f *HTTPRequestChainFactory) Create(config map[string]any) (protocol.Chain, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: http-request needs a url", ErrInvalidConfig)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)
	resultVariable, _ := config["result_variable"].(string)

	headers := make(map[string]string)

	if raw, ok := config["headers"].(map[string]any); ok {
		for key, value := range raw {
			if s, ok := value.(string); ok {
				headers[key] = s
			}
		}
	}

	chain := &HTTPRequestChain{
		client:         f.client,
		url:            url,
		method:         strings.ToUpper(method),
		headers:        headers,
		body:           body,
		resultVariable: resultVariable,
		attempts:       1,
	}

	if retry, ok := config["retry"].(map[string]any); ok {
		if attempts, ok := retry["attempts"].(float64); ok && attempts >= 1 {
			chain.attempts = int(attempts)
		}

		if delay, ok := retry["delay"].(float64); ok && delay > 0 {
			chain.delay = time.Duration(delay * float64(time.Second))
		}
	}

	return chain, nil
}

// HTTPRequestChain calls an external endpoint. Server errors are retried; a
// final status of 400 or above fails the chain.
type HTTPRequestChain struct {
	client         *http.Client
	url            string
	method         string
	headers        map[string]string
	body           string
	resultVariable string
	attempts       int
	delay          time.Duration
}

func (c *HTTPRequestChain) Run(ctx context.Context, doc *protocol.DocumentContext, logger *slog.Logger) error {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "attempts", c.attempts)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.delay):
			}
		}

		result, raw, err := c.do(ctx, doc)
		if err != nil {
			lastErr = err

			continue
		}

		status, _ := result["status_code"].(int)
		if status >= http.StatusInternalServerError && attempt < c.attempts {
			lastErr = fmt.Errorf("%w: %d", ErrHTTPStatus, status)

			continue
		}

		logger.InfoContext(ctx, "HTTP request completed", "method", c.method, "status", status)

		if status >= http.StatusBadRequest {
			return fmt.Errorf("%s %s: %w: %d", c.method, c.url, ErrHTTPStatus, status)
		}

		if c.resultVariable != "" {
			err := doc.NodeVariables.SetAny(c.resultVariable, result)
			if err != nil {
				// Bodies holding values a scope cannot store are kept as text.
				result["body"] = raw

				return doc.NodeVariables.SetAny(c.resultVariable, result)
			}
		}

		return nil
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", c.attempts, lastErr)
}

func (c *HTTPRequestChain) do(ctx context.Context, doc *protocol.DocumentContext) (map[string]any, string, error) {
	url, err := renderString(c.url, doc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render url: %w", err)
	}

	var body io.Reader = http.NoBody

	if c.body != "" {
		rendered, err := renderString(c.body, doc)
		if err != nil {
			return nil, "", fmt.Errorf("failed to render body: %w", err)
		}

		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, url, body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range c.headers {
		rendered, err := renderString(value, doc)
		if err != nil {
			return nil, "", fmt.Errorf("failed to render header '%s': %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		decoded = string(data)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        decoded,
	}, string(data), nil
}

// renderString renders a template and returns its text. Structured results
// are encoded as JSON.
func renderString(input string, doc *protocol.DocumentContext) (string, error) {
	if !template.NeedsTemplating(input) {
		return input, nil
	}

	rendered, err := template.RenderDocument(input, doc)
	if err != nil {
		return "", err
	}

	if s, ok := rendered.(string); ok {
		return s, nil
	}

	encoded, err := json.Marshal(rendered)
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}
