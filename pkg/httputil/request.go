package httputil

import (
	"context"
	"net/http"
	"time"

	"github.com/minpm/minpm/pkg/buildinfo"
	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/observability"
)

// DefaultTimeout bounds a whole request including reading the body.
const DefaultTimeout = 2 * time.Minute

// NewClient creates an HTTP client with the given timeout.
// A zero timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Get performs a GET request for url with the given headers.
//
// Transport failures come back as a [RetryableError] wrapping an
// ErrCodeNetwork error. Any response, whatever its status, is returned to
// the caller, who owns closing its body.
func Get(ctx context.Context, client *http.Client, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build request for %s", url)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, http.MethodGet, host, path)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", url))
	}
	hooks.OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))
	return resp, nil
}

// StatusOK reports whether code is a 2xx status.
func StatusOK(code int) bool {
	return code >= 200 && code < 300
}
