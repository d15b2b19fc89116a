package requestconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"time"
)

const PackageVersion = "0.3.0"

// HTTPDoer is primarily an [*http.Client], but custom transports work too.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestConfig represents all the state related to one request.
//
// Editing the fields directly is unstable api. Prefer composing
// RequestOptions instead.
type RequestConfig struct {
	MaxRetries     int
	RequestTimeout time.Duration
	Context        context.Context
	Request        *http.Request
	BaseURL        *url.URL
	HTTPClient     HTTPDoer
	Middlewares    []Middleware
	BearerToken    string
	// ResponseInto copies the *http.Response of the request into the given
	// address.
	ResponseInto **http.Response

	body []byte
}

type Middleware = func(*http.Request, MiddlewareNext) (*http.Response, error)
type MiddlewareNext = func(*http.Request) (*http.Response, error)

type RequestOption func(*RequestConfig) error

// Error is every non-2xx answer. Code carries the server's machine readable
// reason, e.g. not_a_member or missing_permission.
type Error struct {
	StatusCode int    `json:"-"`
	Status     string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chorus: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("chorus: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func getDefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":               fmt.Sprintf("chorus-go/%s", PackageVersion),
		"X-Chorus-Runtime":         "go " + runtime.Version(),
		"X-Chorus-Platform":        runtime.GOOS + "/" + runtime.GOARCH,
		"X-Chorus-Package-Version": PackageVersion,
	}
}

func NewRequestConfig(ctx context.Context, method, path string, body any, opts ...RequestOption) (*RequestConfig, error) {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	u, err := url.Parse(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range getDefaultHeaders() {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	cfg := &RequestConfig{
		MaxRetries: 2,
		Context:    ctx,
		Request:    req,
		HTTPClient: http.DefaultClient,
		body:       raw,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.BaseURL == nil {
		return nil, errors.New("chorus: base URL is not configured")
	}
	cfg.Request.URL = cfg.BaseURL.JoinPath(u.EscapedPath())
	cfg.Request.URL.RawQuery = u.RawQuery
	if cfg.BearerToken != "" {
		cfg.Request.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
	}

	return cfg, nil
}

func (cfg *RequestConfig) send(req *http.Request) (*http.Response, error) {
	handler := cfg.HTTPClient.Do
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		mw, next := cfg.Middlewares[i], handler
		handler = func(r *http.Request) (*http.Response, error) { return mw(r, next) }
	}
	return handler(req)
}

func shouldRetry(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryDelay(resp *http.Response, attempt int) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(attempt+1) * 250 * time.Millisecond
}

// Execute sends the request, retrying throttled and unavailable answers,
// and decodes a 2xx body into dst when dst is non-nil.
func (cfg *RequestConfig) Execute(dst any) error {
	ctx := cfg.Context
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		req := cfg.Request.Clone(ctx)
		if cfg.body != nil {
			req.Body = io.NopCloser(bytes.NewReader(cfg.body))
			req.ContentLength = int64(len(cfg.body))
		}

		var err error
		resp, err = cfg.send(req)
		if err != nil {
			return err
		}
		if attempt >= cfg.MaxRetries || !shouldRetry(resp) {
			break
		}

		delay := retryDelay(resp, attempt)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	defer resp.Body.Close()

	if cfg.ResponseInto != nil {
		*cfg.ResponseInto = resp
	}

	if resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}

	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func ExecuteNewRequest(ctx context.Context, method, path string, body, dst any, opts ...RequestOption) error {
	cfg, err := NewRequestConfig(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	return cfg.Execute(dst)
}
