package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/metrics"
)

const maxErrorBody = 512

// degradedSignatures are phrases found in the HTML error pages the upstream's
// load balancer serves when it is shedding load.
var degradedSignatures = [][]byte{
	[]byte("bad gateway"),
	[]byte("service unavailable"),
	[]byte("temporarily unavailable"),
	[]byte("too many connections"),
}

// InvokerConfig configures an Invoker.
type InvokerConfig struct {
	Timeout          time.Duration
	RateLimitWait    time.Duration
	MaxRateLimitWait time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Invoker issues single outbound HTTP calls bounded by a deadline and
// classifies failures into the resilience error kinds.
type Invoker struct {
	client *http.Client
	cfg    InvokerConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewInvoker creates an Invoker. A nil client uses http.DefaultClient.
func NewInvoker(client *http.Client, cfg InvokerConfig) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = 5 * time.Second
	}
	if cfg.MaxRateLimitWait <= 0 {
		cfg.MaxRateLimitWait = time.Minute
	}
	return &Invoker{client: client, cfg: cfg, sleep: Sleep}
}

// Invoke performs the request produced by build. build is called again if the
// call has to be re-issued after a 429 wait.
func (i *Invoker) Invoke(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	resp, err := i.once(ctx, build)
	if err == nil || !errors.Is(err, ErrRateLimited) {
		return resp, err
	}

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		return nil, err
	}

	metrics.RateLimitWaits.Inc()
	logging.Warn().Dur("wait", rl.RetryAfter).Msg("Upstream rate limited, waiting before re-issuing call")

	if err := i.sleep(ctx, rl.RetryAfter); err != nil {
		return nil, err
	}
	return i.once(ctx, build)
}

func (i *Invoker) once(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	return withTimeoutValue(ctx, i.cfg.Timeout, func(callCtx context.Context) (*Response, error) {
		req, err := build(callCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		httpResp, err := i.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransient, err)
		}

		resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}
		if err := i.classify(resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
}

func (i *Invoker) classify(resp *Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: i.retryAfter(resp.Header.Get("Retry-After"))}
	}

	if isDegradedPage(resp.Body) {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(resp.Body), kind: ErrUpstreamOverload}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: truncate(resp.Body), kind: KindForStatus(resp.StatusCode)}
}

// KindForStatus maps a non-2xx status code to its failure kind.
func KindForStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusBadGateway, code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return ErrUpstreamOverload
	case code >= 500:
		return ErrTransient
	default:
		return ErrValidation
	}
}

func (i *Invoker) retryAfter(header string) time.Duration {
	wait := i.cfg.RateLimitWait
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(header); err == nil {
			wait = time.Until(at)
		}
	}
	if wait < 0 {
		wait = 0
	}
	if wait > i.cfg.MaxRateLimitWait {
		wait = i.cfg.MaxRateLimitWait
	}
	return wait
}

func isDegradedPage(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 4096 {
		head = head[:4096]
	}
	if !bytes.HasPrefix(head, []byte("<html")) && !bytes.HasPrefix(head, []byte("<!doctype html")) {
		return false
	}
	for _, sig := range degradedSignatures {
		if bytes.Contains(head, sig) {
			return true
		}
	}
	return false
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// WithTimeout runs fn under a deadline of d. If the deadline expires the
// result is ErrTimeout, distinct from any transport failure fn reports.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	_, err := withTimeoutValue(ctx, d, func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, fn(callCtx)
	})
	return err
}

func withTimeoutValue[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
	if err != nil && ctx.Err() != nil {
		var zero T
		return zero, ctx.Err()
	}
	return v, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
