// Package apiclient is the single code path for calls from the QA portal to its backend API.
//
// A Client owns the session (bearer token and cached user profile), shapes every outbound
// request (base URL, headers, JSON or multipart body) and converts every failure into an *Error.
// A 401 on any call made with the session token forces the session back to Anonymous.
//
// Nothing is retried automatically: uploads and most writes are not safe to repeat blindly.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/airqa/qaportal/internal/config"
	"github.com/airqa/qaportal/internal/logger"
	"github.com/airqa/qaportal/internal/metrics"
	"github.com/airqa/qaportal/internal/version"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerRequestID     = "X-Request-ID"

	// error bodies are only read for their message
	maxErrorBodySize = 1 << 20
)

// Client handles communication with the QA portal backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	logger     *slog.Logger
	metrics    metrics.Recorder
	clock      clockwork.Clock
	limiter    *rate.Limiter
	userAgent  string

	mu         sync.Mutex
	token      string
	user       *UserProfile
	generation uint64
	attempts   int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (e.g. to install a custom transport)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenStore sets the durable token store, the default keeps the token in memory only
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.store = store }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// New creates a Client for cfg.APIBaseURL with an empty session.
// Call RestoreSession to pick up a token persisted by an earlier run.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultAPIBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	c := &Client{
		baseURL:   baseURL,
		userAgent: cfg.UserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: cfg.RequestTimeout,
		}
	}
	if cfg.SendCookies && c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		hc := *c.httpClient
		hc.Jar = jar
		c.httpClient = &hc
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.logger == nil {
		c.logger = logger.Discard()
	}
	if c.metrics == nil {
		c.metrics = metrics.Noop{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.userAgent == "" {
		c.userAgent = version.UserAgent()
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return c, nil
}

// BaseURL returns the configured base URL every path is resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOption shapes a single call
type RequestOption func(*requestOptions)

type requestOptions struct {
	headers http.Header
	query   url.Values
	noAuth  bool
	token   string
}

// WithHeader adds a header to the request. Setting Authorization here is the explicit
// override of the session token, and Content-Type is ignored for multipart forms.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		o.headers.Set(key, value)
	}
}

// WithQuery merges query parameters into the request URL
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = make(url.Values)
		}
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithoutAuth suppresses the session's Authorization header for this call
func WithoutAuth() RequestOption {
	return func(o *requestOptions) { o.noAuth = true }
}

// WithToken attaches token as the bearer credential instead of the session's current token
func WithToken(token string) RequestOption {
	return func(o *requestOptions) { o.token = token }
}

// Get issues a GET and decodes the response into out
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post issues a POST with body (JSON unless it is a *Form or io.Reader) and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPost, path, body, out, opts...)
}

// Put issues a PUT with body and decodes the response into out
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPut, path, body, out, opts...)
}

// Delete issues a DELETE and decodes the response into out
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodDelete, path, nil, out, opts...)
}

// PostForm issues a multipart POST. The form is never JSON encoded.
func (c *Client) PostForm(ctx context.Context, path string, form *Form, out any, opts ...RequestOption) error {
	if form == nil {
		return newInternalError(fmt.Errorf("nil form"), "preparing multipart request")
	}
	return c.Request(ctx, http.MethodPost, path, form, out, opts...)
}

// Request is the universal verb: every call to the backend goes through here.
//
// path is relative to the configured base URL and may carry a query string.
// On a 2xx response the body is decoded into out exactly as the backend sent it; a nil out
// or an empty body leaves out untouched. *json.RawMessage and *[]byte receive the raw bytes.
// Every failure is returned as an *Error.
func (c *Client) Request(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	target, err := c.resolve(path, ro.query)
	if err != nil {
		return err
	}

	reader, contentType, isForm, err := encodeBody(body)
	if err != nil {
		return newInternalError(err, "encoding request body")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return newInternalError(err, "creating request")
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerRequestID, requestID)
	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}
	for key, values := range ro.headers {
		if isForm && http.CanonicalHeaderKey(key) == headerContentType {
			continue
		}
		req.Header[key] = values
	}

	gen, sessionToken := c.current()

	// token actually sent, used to decide whether a 401 ends the session
	var sentToken string
	switch {
	case ro.headers.Get(headerAuthorization) != "":
		// explicit override, left as the caller set it
	case ro.token != "":
		sentToken = ro.token
	case !ro.noAuth:
		sentToken = sessionToken
	}
	if sentToken != "" {
		req.Header.Set(headerAuthorization, "Bearer "+sentToken)
	}

	log := c.logger.With(
		slog.String("method", method),
		slog.String("path", req.URL.Path),
		slog.String("request_id", requestID),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.RecordNetworkFailure(method)
			log.Debug("request not sent", slog.String("error", err.Error()))
			return newNetworkError(err)
		}
	}

	start := c.clock.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordNetworkFailure(method)
		log.Debug("request failed", slog.String("error", err.Error()))
		return newNetworkError(err)
	}
	defer res.Body.Close()

	success := res.StatusCode >= 200 && res.StatusCode < 300

	var data []byte
	if success {
		data, err = io.ReadAll(res.Body)
	} else {
		data, err = io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
	}
	duration := c.clock.Since(start)
	c.metrics.RecordRequest(method, res.StatusCode, duration)
	log.Debug("request completed", slog.Int("status", res.StatusCode), slog.Duration("duration", duration))

	if err != nil && success {
		return newNetworkError(fmt.Errorf("reading response body: %w", err))
	}

	if !success {
		apiErr := newAPIError(res.StatusCode, data)
		if res.StatusCode == http.StatusUnauthorized && sentToken != "" {
			c.invalidate(gen, sentToken, "unauthorized")
		}
		return apiErr
	}

	if err := decodeBody(data, out); err != nil {
		e := newInternalError(err, "decoding response body")
		e.StatusCode = res.StatusCode
		return e
	}
	return nil
}

// resolve joins path onto the base URL. Absolute URLs are refused so that every call
// goes to the one configured backend.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	if path == "" {
		return "", newInternalError(fmt.Errorf("empty path"), "resolving request URL")
	}
	// a URL inside the query string is fine, only the path itself must be relative
	pathOnly, _, _ := strings.Cut(path, "?")
	if strings.HasPrefix(pathOnly, c.baseURL) || strings.Contains(pathOnly, "://") || strings.HasPrefix(pathOnly, "//") {
		return "", newInternalError(fmt.Errorf("path %q must be relative to the base URL", path), "resolving request URL")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", newInternalError(err, "resolving request URL")
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encodeBody returns the request body and the Content-Type it needs, if any
func encodeBody(body any) (io.Reader, string, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", false, nil
	case *Form:
		if b == nil {
			return nil, "", false, nil
		}
		buf, contentType, err := b.encode()
		if err != nil {
			return nil, "", true, err
		}
		return buf, contentType, true, nil
	case json.RawMessage:
		return bytes.NewReader(b), "application/json", false, nil
	case io.Reader:
		return b, "", false, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", false, err
		}
		return bytes.NewReader(data), "application/json", false, nil
	}
}

func decodeBody(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	switch o := out.(type) {
	case *json.RawMessage:
		*o = append((*o)[:0], data...)
		return nil
	case *[]byte:
		*o = append((*o)[:0], data...)
		return nil
	default:
		return json.Unmarshal(data, out)
	}
}
