// Copyright 2025 The Civic Educator Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultAttempts bounds the total number of tries per request.
	DefaultAttempts = 3

	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 10 * time.Second
)

// ParseRetryAfter reads the Retry-After header, in either seconds or
// HTTP-date form. Zero when absent or unparseable.
func ParseRetryAfter(headers http.Header) time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Do sends a request with retries on rate limiting (429) and server
// errors (5xx). build is called once per attempt so the request body
// can be re-created. The caller owns the returned response body.
func Do(ctx context.Context, client *http.Client, attempts int, build func() (*http.Request, error)) (*http.Response, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := ParseRetryAfter(resp.Header)
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    resp.Status,
				RetryAfter: retryAfter,
			}
		} else {
			return resp, nil
		}

		if attempt == attempts-1 {
			break
		}

		wait := backoff(attempt, lastErr)
		slog.Debug("Retrying request",
			"url", req.URL.Redacted(), "attempt", attempt+1, "wait", wait, "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func backoff(attempt int, err error) time.Duration {
	if re, ok := err.(*RetryableError); ok && re.RetryAfter > 0 {
		if re.RetryAfter > maxBackoff {
			return maxBackoff
		}
		return re.RetryAfter
	}
	wait := baseBackoff << attempt
	if wait > maxBackoff {
		wait = maxBackoff
	}
	return wait
}
