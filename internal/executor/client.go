package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/APIExplore/api-explore-backend/internal/analysis"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

// ErrSutUnreachable is returned when a call produced no HTTP response at all
var ErrSutUnreachable = errors.New("system under test is unreachable")

const (
	defaultContentType = "none specified"
	unreadContentType  = "application/octet-stream"
)

// Outcome is the result of dispatching one call. Err is set when the call
// could not be completed; Result then carries whatever was known.
type Outcome struct {
	Result *types.CallResult
	Err    error
}

// Unreachable reports whether the outcome ends the sequence
func (o Outcome) Unreachable() bool {
	return errors.Is(o.Err, ErrSutUnreachable)
}

// Config holds configuration for dispatching calls
type Config struct {
	Timeout          time.Duration
	RateLimit        float64 // calls per second, 0 means unlimited
	Burst            int
	AuthToken        string
	MaxResponseBytes int64 // 0 means unlimited
}

// Client dispatches calls to the system under test
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a new client
func NewClient(config Config, logger *zap.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// Dispatch sends one call and records its response. Any HTTP status is a
// normal result; only a missing response is reported as ErrSutUnreachable.
func (c *Client) Dispatch(ctx context.Context, call types.CallDescriptor) Outcome {
	result := types.NewCallResult(call)

	if err := c.limiter.Wait(ctx); err != nil {
		return Outcome{Result: result, Err: fmt.Errorf("%w: %v", ErrSutUnreachable, err)}
	}

	req, err := c.newRequest(ctx, call)
	if err != nil {
		return Outcome{Result: result, Err: err}
	}

	result.StartedAt = time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		result.DurationMs = time.Since(result.StartedAt).Milliseconds()
		result.Error = err.Error()
		c.logger.Warn("call failed without response",
			zap.String("method", req.Method),
			zap.String("url", call.URL),
			zap.Error(err))
		return Outcome{Result: result, Err: fmt.Errorf("%w: %s %s: %v", ErrSutUnreachable, req.Method, call.URL, err)}
	}
	defer resp.Body.Close()

	result.Response = c.capture(resp)
	result.DurationMs = result.Response.CompletedAt.Sub(result.StartedAt).Milliseconds()

	c.logger.Debug("call completed",
		zap.String("method", req.Method),
		zap.String("url", call.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", result.DurationMs))
	return Outcome{Result: result}
}

// Replay re-issues a recorded call. The recorded response and timing are
// kept; differences from the new response are attached as warnings.
func (c *Client) Replay(ctx context.Context, prior *types.CallResult) Outcome {
	replayed := *prior
	replayed.Warnings = nil

	out := c.Dispatch(ctx, prior.Descriptor())
	if out.Err != nil {
		return Outcome{Result: &replayed, Err: out.Err}
	}

	var was, now int
	if prior.Response != nil {
		was = prior.Response.Status
	}
	now = out.Result.Response.Status
	if was != now {
		replayed.Warnings = append(replayed.Warnings, types.Warningf("Status changed from %d to %d", was, now))
	}

	var wasData any
	if prior.Response != nil {
		wasData = prior.Response.Data
	}
	if !analysis.Equal(wasData, out.Result.Response.Data) {
		replayed.Warnings = append(replayed.Warnings, types.Warningf("Response data changed"))
	}
	return Outcome{Result: &replayed}
}

// newRequest encodes a call. A JSON body wins over form data.
func (c *Client) newRequest(ctx context.Context, call types.CallDescriptor) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case len(call.RequestBody.Body) > 0:
		data, err := json.Marshal(call.RequestBody.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case len(call.RequestBody.FormData) > 0:
		body = strings.NewReader(encodeForm(call.RequestBody.FormData))
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(call.Method), call.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, */*")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	return req, nil
}

func (c *Client) capture(resp *http.Response) *types.Response {
	captured := &types.Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.ContentLength > 0 {
		captured.Size = resp.ContentLength
	}

	var reader io.Reader = resp.Body
	if c.config.MaxResponseBytes > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxResponseBytes)
	}
	raw, err := io.ReadAll(reader)
	captured.CompletedAt = time.Now()
	if err != nil {
		c.logger.Warn("failed to read response body", zap.Error(err))
		if captured.ContentType == "" {
			captured.ContentType = unreadContentType
		}
		return captured
	}
	if captured.ContentType == "" {
		captured.ContentType = defaultContentType
	}
	captured.Data = decodeData(raw)
	return captured
}

// decodeData returns the JSON value of a body, the body as text when it is
// not JSON, or nil when it is empty
func decodeData(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}

func encodeForm(fields map[string]any) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	form := url.Values{}
	for _, name := range names {
		switch v := fields[name].(type) {
		case nil:
		case []any:
			for _, item := range v {
				form.Add(name, fmt.Sprint(item))
			}
		default:
			form.Add(name, fmt.Sprint(v))
		}
	}
	return form.Encode()
}
