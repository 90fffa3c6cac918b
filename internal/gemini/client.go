// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the Gemini API.
const (
	// DefaultBaseURL is the base URL for the Gemini REST API.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-2.0-flash"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the total number of attempts for transient errors.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the fixed delay between attempts. The delay is
	// constant, not exponential: rate limit recovery for this API is not
	// improved by growing waits, and a fixed cadence keeps worst-case
	// latency predictable (maxRetries * delay).
	DefaultRetryDelay = 1 * time.Second

	// MaxContextTokens is the context window enforced before any request
	// is sent. Matches the gemini-2.0-flash input budget used here.
	MaxContextTokens = 30720

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// contentTokenOverhead approximates the per-turn framing cost on top of
	// the ~4 chars/token text heuristic.
	contentTokenOverhead = 4
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client with connection pooling for all Gemini requests.
// SECURITY: TLS verification required for production
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// sleepFunc waits for the given duration or until the context is cancelled.
// Injectable so tests can count or zero the retry delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

// defaultSleep is the context-aware wait used between attempts.
func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Client is a client for communicating with the Gemini generateContent API.
//
// The zero value is not usable; construct with NewClient. A Client is safe
// for use from a single goroutine; the With* builders must not race with
// in-flight requests.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client

	// sleep implements the inter-attempt delay. Tests replace it to
	// instrument or eliminate waiting.
	sleep sleepFunc

	// classify decides which errors are worth another attempt.
	classify RetryClassifier

	// pacer, when set, spaces consecutive requests to stay under the
	// provider's request-per-minute quota.
	pacer *rate.Limiter
}

// NewClient creates a new Gemini client with the given API key.
//
// If the API key is empty, the client is still created but requests fail
// with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		httpClient: sharedHTTPClient,
		sleep:      defaultSleep,
		classify:   DefaultRetryClassifier,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// WithModel sets the model to use for generate requests.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	client := *c.httpClient
	client.Timeout = timeout
	c.httpClient = &client
	return c
}

// WithMaxRetries sets the total number of attempts for transient errors.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithRetryDelay sets the fixed delay between attempts.
func (c *Client) WithRetryDelay(delay time.Duration) *Client {
	if delay >= 0 {
		c.retryDelay = delay
	}
	return c
}

// WithRetryClassifier replaces the retryable boundary. Useful when a
// deployment wants to treat, say, rate limits as permanent.
func (c *Client) WithRetryClassifier(classify RetryClassifier) *Client {
	if classify != nil {
		c.classify = classify
	}
	return c
}

// WithRequestInterval spaces consecutive requests at least interval apart,
// keeping the client under the provider's request-per-minute quota.
func (c *Client) WithRequestInterval(interval time.Duration) *Client {
	if interval > 0 {
		c.pacer = rate.NewLimiter(rate.Every(interval), 1)
	}
	return c
}

// withSleep replaces the inter-attempt wait. Test hook.
func (c *Client) withSleep(sleep sleepFunc) *Client {
	if sleep != nil {
		c.sleep = sleep
	}
	return c
}

// Model returns the current model.
func (c *Client) Model() string {
	return c.model
}

// MaxRetries returns the configured attempt cap.
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// IsConfigured returns true if the client has an API key configured.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a masked version of the API key for display.
// SECURITY: Never exposes API key fragments - use fingerprint instead.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.apiKey), c.keyFingerprint())
}

// keyFingerprint returns a SHA-256 based fingerprint of the API key for
// logging, so keys can be told apart without exposing any fragment.
func (c *Client) keyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// KeyFingerprint returns a secure fingerprint of the API key for external use.
func (c *Client) KeyFingerprint() string {
	return c.keyFingerprint()
}

// =============================================================================
// REQUEST/RESPONSE LOGGING (without sensitive data)
// =============================================================================

// logRequest logs an API request without exposing sensitive data. The URL
// path never contains the key; the query string (which does) is not logged.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs an API response with duration. Only the status code and
// timing are logged, never the body.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d (%v)", resp.StatusCode, duration)
}

// =============================================================================
// TOKEN BUDGET
// =============================================================================

// CountTokens estimates the token cost of a request using the ~4 chars/token
// approximation plus a per-turn overhead. This is the pre-flight check, not
// the provider's tokenizer; it deliberately errs high.
func CountTokens(contents []Content) int {
	total := 0
	for _, content := range contents {
		for _, part := range content.Parts {
			total += (len(part.Text) + 3) / 4
		}
		total += contentTokenOverhead
	}
	return total
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateContent sends the full conversation history to the model and
// returns its reply.
//
// The token budget is enforced locally first: an over-budget request returns
// ErrInputTooLong without touching the network. Transient failures (rate
// limits, transport and 5xx errors) are retried up to the attempt cap with a
// fixed, context-aware delay between attempts; safety blocks and malformed
// responses fail immediately. When every attempt fails, the last classified
// error is returned.
func (c *Client) GenerateContent(ctx context.Context, contents []Content) (*GenerateResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: no contents to send", ErrInvalidResponse)
	}

	if tokens := CountTokens(contents); tokens > MaxContextTokens {
		return nil, fmt.Errorf("%w: estimated %d tokens, limit %d",
			ErrInputTooLong, tokens, MaxContextTokens)
	}

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqBody := generateRequest{Contents: contents}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}

		response, err := c.doRequest(ctx, reqBody)
		if err != nil {
			if c.classify(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return response, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, errors.New("max retries exceeded")
}

// Generate sends a single user prompt with no prior history.
func (c *Client) Generate(ctx context.Context, prompt string) (*GenerateResponse, error) {
	return c.GenerateContent(ctx, []Content{NewUserContent(prompt)})
}

// doRequest performs a single HTTP round trip to the generateContent
// endpoint and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, reqBody generateRequest) (*GenerateResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	requestURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gemrun/"+userAgentVersion)

	c.logRequest(req)
	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		// Context cancellation is surfaced as-is so the retry loop stops
		// instead of classifying it as a transient network failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.logResponse(resp, duration)

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse body: %v", ErrInvalidResponse, err)
	}

	// A 200 can still be a refusal: prompt feedback with a block reason
	// means the safety filters declined to generate anything.
	if genResp.PromptFeedback != nil && genResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrSafetyBlocked, genResp.PromptFeedback.BlockReason)
	}

	if genResp.Text() == "" {
		return nil, fmt.Errorf("%w: no candidates in response", ErrInvalidResponse)
	}

	return &genResp, nil
}

// handleErrorResponse converts HTTP error responses into the closed error
// taxonomy: 429 is a rate limit, 5xx is a network-class failure, and every
// other status is an invalid response.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{Status: statusCode}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Code = parsed.Error.Status
		apiErr.Message = parsed.Error.Message
	} else {
		apiErr.Message = trimBody(body)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		apiErr.Kind = ErrRateLimited
	case statusCode >= 500:
		apiErr.Kind = ErrNetwork
	default:
		apiErr.Kind = ErrInvalidResponse
	}
	return apiErr
}

// trimBody keeps error messages readable when the body is not JSON.
func trimBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// readResponse reads the response body with size limits.
//
// SECURITY: Response size limit prevents memory exhaustion attacks.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeded maximum size of %d bytes",
			ErrInvalidResponse, MaxResponseSize)
	}

	return body, nil
}

// =============================================================================
// MODEL LISTING
// =============================================================================

// ListModels retrieves the list of available models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	requestURL := fmt.Sprintf("%s/models?key=%s", c.baseURL, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gemrun/"+userAgentVersion)

	c.logRequest(req)
	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(startTime))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var modelsResp modelsResponse
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse models response: %v", ErrInvalidResponse, err)
	}

	return modelsResp.Models, nil
}

// userAgentVersion is stamped by main at startup; a bare default keeps the
// header sane when the package is used standalone.
var userAgentVersion = "dev"

// SetUserAgentVersion sets the version reported in the User-Agent header.
func SetUserAgentVersion(v string) {
	if v != "" {
		userAgentVersion = v
	}
}
