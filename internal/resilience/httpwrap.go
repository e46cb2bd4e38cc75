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
)

// HTTPClient wraps an http.Client with retry, timeout and circuit-breaker logic.
// Transport errors and 5xx responses count as breaker failures and are retried.
// 429 is retried after its Retry-After delay without tripping the breaker.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	MaxWait     time.Duration
}

// StatusError reports the final non-success status after retries ran out.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %s", e.Status)
}

// Do executes req applying retry semantics. The body is buffered so every
// attempt resends it. A response below 500 other than 429 is returned to the
// caller as is; the caller owns its body.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	maxAttempts := max(cl.MaxAttempts, 1)
	baseBackoff := cl.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}
		attemptReq := req.Clone(ctx)
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
		}
		wait := Backoff(baseBackoff, attempt, cl.Jitter)
		resp, err := cl.doOnce(ctx, attemptReq)
		switch {
		case err != nil:
			lastErr = err
			breaker.Report(ctx, false)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			breaker.Report(ctx, true)
			if d, ok := retryAfter(resp); ok {
				wait = d
			}
			drain(resp)
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			breaker.Report(ctx, false)
			drain(resp)
		default:
			breaker.Report(ctx, true)
			return resp, nil
		}
		if attempt == maxAttempts {
			break
		}
		if cl.MaxWait > 0 && wait > cl.MaxWait {
			wait = cl.MaxWait
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		return cl.Client.Do(req.WithContext(ctx))
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
