// Package marketplace contains the HTTP adapters of the supported marketplaces.
// Every adapter shares httpTransport, which owns the timeout, the request budget
// and the translation of HTTP answers into the typed errors of the domain.
package marketplace

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize caps how much of a response body is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

// DefaultTimeout bounds every marketplace call
const DefaultTimeout = 30 * time.Second

// defaultRetryAfter is assumed when a 429 carries no usable Retry-After
const defaultRetryAfter = 60 * time.Second

// maxErrorBody is how much of an error body is kept on RemoteServerError
const maxErrorBody = 512

// Options tune the transport of a client
type Options struct {
	// Timeout bounds a single call; defaults to DefaultTimeout
	Timeout time.Duration
	// RequestsPerMinute is the request budget; <= 0 disables limiting
	RequestsPerMinute int
	// HTTPClient replaces the default client (tests). Its Timeout is overridden.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// authorizer decorates an outgoing request with credentials
type authorizer func(ctx context.Context, req *http.Request) error

// errorDecoder extracts a message and field errors from a 4xx body
type errorDecoder func(body []byte) (string, []marketsync.FieldError)

// httpTransport is the shared HTTP base of the adapters
type httpTransport struct {
	code       marketsync.MarketplaceCode
	client     *http.Client
	limiter    *rate.Limiter
	authorize  authorizer
	decodeErr  errorDecoder
	userAgent  string
	logger     *zap.Logger
	timeout    time.Duration
	defaultHdr http.Header

	// onAuthFailure runs after a 401/403, e.g. to drop a cached token
	onAuthFailure func()
}

func newTransport(code marketsync.MarketplaceCode, opts Options) *httpTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	} else {
		copied := *client
		client = &copied
	}
	client.Timeout = opts.Timeout

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	t := &httpTransport{
		code:       code,
		client:     client,
		decodeErr:  decodeJSONError,
		userAgent:  "marketsync/1.0",
		logger:     log.Named("marketplace").With(zap.String("marketplace", string(code))),
		timeout:    opts.Timeout,
		defaultHdr: make(http.Header),
	}
	if opts.RequestsPerMinute > 0 {
		burst := opts.RequestsPerMinute / 60
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), burst)
	}
	return t
}

// request describes one call
type request struct {
	method  string
	url     string
	query   url.Values
	body    []byte
	ctype   string
	headers http.Header
	// noAuth skips the authorizer (token endpoints)
	noAuth bool
	// missingOK turns a 404 into errRemoteMissing
	missingOK bool
}

// jsonRequest builds a request with a JSON body
func jsonRequest(method, rawURL string, body any) (*request, error) {
	r := &request{method: method, url: rawURL}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		r.body = raw
		r.ctype = "application/json"
	}
	return r, nil
}

// do executes r and returns the body of a 2xx answer. Every failure is one
// of the typed marketplace errors.
func (t *httpTransport) do(ctx context.Context, r *request) ([]byte, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &marketsync.TransportError{Marketplace: t.code, Err: err}
		}
	}

	target := r.url
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, &marketsync.ValidationError{Marketplace: t.code, Message: "build request: " + err.Error()}
	}
	for k, vs := range t.defaultHdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range r.headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.ctype != "" {
		req.Header.Set("Content-Type", r.ctype)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("User-Agent", t.userAgent)
	if !r.noAuth && t.authorize != nil {
		if err := t.authorize(ctx, req); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		logger.L(ctx, t.logger).Warn("Marketplace call failed",
			zap.String("method", r.method),
			zap.String("url", r.url),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, &marketsync.TransportError{Marketplace: t.code, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &marketsync.TransportError{Marketplace: t.code, Err: fmt.Errorf("read response: %w", err)}
	}

	logger.L(ctx, t.logger).Debug("Marketplace call",
		zap.String("method", r.method),
		zap.String("url", r.url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if r.missingOK && resp.StatusCode == http.StatusNotFound {
		return nil, errRemoteMissing
	}
	if err := t.classify(resp, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// doJSON executes r and decodes a JSON answer into out (when non-nil)
func (t *httpTransport) doJSON(ctx context.Context, r *request, out any) error {
	raw, err := t.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return t.invalidResponse(err)
	}
	return nil
}

// invalidResponse reports an answer that could not be decoded. A garbled
// answer is treated as a server fault, which keeps it retryable.
func (t *httpTransport) invalidResponse(err error) error {
	return &marketsync.RemoteServerError{Marketplace: t.code, StatusCode: http.StatusOK, Body: "invalid response: " + err.Error()}
}

// classify maps an HTTP answer to a typed error, nil for 2xx
func (t *httpTransport) classify(resp *http.Response, body []byte) error {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if t.onAuthFailure != nil {
			t.onAuthFailure()
		}
		msg, _ := t.decodeErr(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &marketsync.AuthError{Marketplace: t.code, Message: msg}
	case status == http.StatusTooManyRequests:
		return &marketsync.RateLimitedError{Marketplace: t.code, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case status >= 400 && status < 500:
		msg, fields := t.decodeErr(body)
		if msg == "" && len(fields) == 0 {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return &marketsync.ValidationError{Marketplace: t.code, Message: msg, Fields: fields}
	default:
		return &marketsync.RemoteServerError{Marketplace: t.code, StatusCode: status, Body: truncate(string(body), maxErrorBody)}
	}
}

// parseRetryAfter reads delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return defaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return defaultRetryAfter
}

// decodeJSONError understands the common error envelopes of the supported
// marketplaces: {"message"}, {"errors":[{"key"|"field"|"code","message"}]} and
// {"error_description"}.
func decodeJSONError(body []byte) (string, []marketsync.FieldError) {
	var env struct {
		Message          string `json:"message"`
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
		Errors           []struct {
			Key      string `json:"key"`
			Field    string `json:"field"`
			Code     any    `json:"code"`
			ErrorID  any    `json:"errorId"`
			Message  string `json:"message"`
			LongMsg  string `json:"longMessage"`
			Property string `json:"property"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return truncate(strings.TrimSpace(string(body)), maxErrorBody), nil
	}

	msg := env.Message
	if msg == "" {
		msg = env.ErrorDescription
	}
	if msg == "" {
		if s, ok := env.Error.(string); ok {
			msg = s
		}
	}

	var fields []marketsync.FieldError
	for _, e := range env.Errors {
		field := firstNonEmpty(e.Field, e.Key, e.Property)
		if field == "" && e.Code != nil {
			field = fmt.Sprint(e.Code)
		}
		if field == "" && e.ErrorID != nil {
			field = fmt.Sprint(e.ErrorID)
		}
		text := firstNonEmpty(e.Message, e.LongMsg)
		if field == "" && msg == "" {
			msg = text
			continue
		}
		fields = append(fields, marketsync.FieldError{Field: field, Message: text})
	}
	return msg, fields
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// joinURL appends path segments to base, escaping each segment
func joinURL(base string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// lineError turns a per-line rejection into the error stored on the line's item
func lineError(code marketsync.MarketplaceCode, ref string, messages ...string) error {
	msgs := make([]string, 0, len(messages))
	for _, m := range messages {
		if m = strings.TrimSpace(m); m != "" {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "rejected by marketplace")
	}
	return &marketsync.ValidationError{
		Marketplace: code,
		Message:     strings.Join(msgs, "; "),
		Fields:      []marketsync.FieldError{{Field: ref, Message: msgs[0]}},
	}
}

// outcomeIndex indexes the outcomes of a batch by ref
type outcomeIndex struct {
	refs     []string
	outcomes map[string]*marketsync.ItemOutcome
}

func newOutcomeIndex(n int) *outcomeIndex {
	return &outcomeIndex{refs: make([]string, 0, n), outcomes: make(map[string]*marketsync.ItemOutcome, n)}
}

func (x *outcomeIndex) add(ref, remoteID string) {
	x.refs = append(x.refs, ref)
	x.outcomes[ref] = &marketsync.ItemOutcome{Ref: ref, RemoteID: remoteID}
}

func (x *outcomeIndex) fail(ref string, err error) {
	if o, ok := x.outcomes[ref]; ok {
		o.Err = err
	}
}

// failRemote fails every line carrying remoteID
func (x *outcomeIndex) failRemote(remoteID string, err error) bool {
	found := false
	for _, ref := range x.refs {
		if o := x.outcomes[ref]; o.RemoteID == remoteID {
			o.Err = err
			found = true
		}
	}
	return found
}

func (x *outcomeIndex) result(batchID string) *marketsync.BatchResult {
	res := &marketsync.BatchResult{BatchID: batchID, Outcomes: make([]marketsync.ItemOutcome, 0, len(x.refs))}
	for _, ref := range x.refs {
		res.Outcomes = append(res.Outcomes, *x.outcomes[ref])
	}
	return res
}

var (
	errEmptyCredentials = errors.New("marketplace: credentials are empty")
	errRemoteMissing    = errors.New("marketplace: remote entity not found")
)
