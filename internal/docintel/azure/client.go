// Package azure calls the Azure AI Document Intelligence REST API.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"intake-portal/internal/docintel"
	"intake-portal/internal/shared/telemetry"
)

const (
	defaultModel        = "prebuilt-document"
	defaultAPIVersion   = "2023-07-31"
	defaultPollInterval = time.Second
	defaultMaxAttempts  = 3
	maxBackoff          = 30 * time.Second
)

// Config holds client settings. RequestsPerSecond <= 0 disables pacing.
type Config struct {
	Endpoint          string
	APIKey            string
	Model             string
	APIVersion        string
	PollInterval      time.Duration
	RequestsPerSecond float64
	MaxAttempts       int
	HTTPClient        *http.Client
}

// Client submits documents for analysis and polls the long-running operation.
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	apiVersion   string
	pollInterval time.Duration
	maxAttempts  int
	http         *http.Client
	limiter      *rate.Limiter
	sleep        func(ctx context.Context, d time.Duration) error
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("document intelligence endpoint is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("document intelligence key is required")
	}
	c := &Client{
		endpoint:     endpoint,
		apiKey:       cfg.APIKey,
		model:        firstNonEmpty(cfg.Model, defaultModel),
		apiVersion:   firstNonEmpty(cfg.APIVersion, defaultAPIVersion),
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		http:         cfg.HTTPClient,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		sleep:        sleepCtx,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

type analyzeOperation struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *apiError      `json:"error"`
}

type analyzeResult struct {
	Content       string         `json:"content"`
	KeyValuePairs []keyValuePair `json:"keyValuePairs"`
}

type keyValuePair struct {
	Key   *element `json:"key"`
	Value *element `json:"value"`
}

type element struct {
	Content string `json:"content"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// Analyze submits data and waits for the operation to finish or ctx to end.
func (c *Client) Analyze(ctx context.Context, data []byte, contentType string) (docintel.Result, error) {
	opURL, err := c.submit(ctx, data, contentType)
	if err != nil {
		return docintel.Result{}, err
	}

	wait := c.pollInterval
	for {
		if err := c.sleep(ctx, wait); err != nil {
			return docintel.Result{}, err
		}
		op, retryAfter, err := c.poll(ctx, opURL)
		if err != nil {
			return docintel.Result{}, err
		}
		switch strings.ToLower(op.Status) {
		case "succeeded":
			return toResult(op.AnalyzeResult), nil
		case "failed", "canceled":
			se := &docintel.ServiceError{StatusCode: http.StatusOK, Message: "analysis " + strings.ToLower(op.Status)}
			if op.Error != nil {
				se.Code = op.Error.Code
				se.Message = op.Error.Message
			}
			return docintel.Result{}, se
		}
		wait = c.pollInterval
		if retryAfter > 0 {
			wait = retryAfter
		}
	}
}

func (c *Client) submit(ctx context.Context, data []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		c.endpoint, url.PathEscape(c.model), url.QueryEscape(c.apiVersion))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusAccepted {
		return "", serviceError(resp)
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", &docintel.ServiceError{StatusCode: resp.StatusCode, Message: "missing Operation-Location header"}
	}
	return opURL, nil
}

func (c *Client) poll(ctx context.Context, opURL string) (analyzeOperation, time.Duration, error) {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	})
	if err != nil {
		return analyzeOperation{}, 0, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return analyzeOperation{}, 0, serviceError(resp)
	}
	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return analyzeOperation{}, 0, fmt.Errorf("decode analyze operation: %w", err)
	}
	return op, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// do paces the call, signs it and retries throttled or failed responses.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = &docintel.ServiceError{StatusCode: http.StatusBadGateway, Message: err.Error()}
			if attempt < c.maxAttempts {
				if err := c.sleep(ctx, backoff(attempt, 0)); err != nil {
					return nil, err
				}
			}
			continue
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		lastErr = serviceError(resp)
		drain(resp)
		telemetry.Warn("docintel.request.retry", map[string]any{
			"attempt":     attempt,
			"status":      resp.StatusCode,
			"retry_after": retryAfter.String(),
		})
		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, backoff(attempt, retryAfter)); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func toResult(r *analyzeResult) docintel.Result {
	if r == nil {
		return docintel.Result{KeyValuePairs: []docintel.KeyValue{}}
	}
	out := docintel.Result{Content: r.Content, KeyValuePairs: make([]docintel.KeyValue, 0, len(r.KeyValuePairs))}
	for _, kv := range r.KeyValuePairs {
		if kv.Key == nil {
			continue
		}
		pair := docintel.KeyValue{Key: kv.Key.Content}
		if kv.Value != nil {
			pair.Value = kv.Value.Content
			pair.HasValue = true
		}
		out.KeyValuePairs = append(out.KeyValuePairs, pair)
	}
	return out
}

func serviceError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	se := &docintel.ServiceError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		se.Code = env.Error.Code
		se.Message = env.Error.Message
	}
	return se
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > maxBackoff {
			return maxBackoff
		}
		return retryAfter
	}
	d := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var _ docintel.Analyzer = (*Client)(nil)
