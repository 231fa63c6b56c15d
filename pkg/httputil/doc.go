// Package httputil provides HTTP plumbing shared by the registry client and
// the tarball fetcher.
//
// # Requests
//
// [Get] issues a context-bound GET, reports the exchange to the
// [observability.HTTP] hooks and classifies failures: transport errors are
// wrapped in [RetryableError] with code NETWORK_ERROR, and the response is
// returned untouched so callers decide what a non-2xx status means.
//
// # Retry
//
// [Retry] re-runs an operation only for errors wrapped with
// [RetryableError], doubling the delay after each failed attempt. The
// installer runs with a single attempt unless the user opts into retries
// through configuration:
//
//	err := httputil.Retry(ctx, cfg.Registry.Retries+1, time.Second, fetch)
//
// [observability.HTTP]: github.com/minpm/minpm/pkg/observability.HTTP
package httputil
