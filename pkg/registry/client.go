package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/httputil"
	"github.com/minpm/minpm/pkg/manifest"
)

// DefaultURL is the public npm registry.
const DefaultURL = "https://registry.npmjs.org/"

// Metadata is the registry document for one package.
type Metadata struct {
	Name     string
	DistTags map[string]string
	Versions map[string]VersionRecord
}

// VersionRecord describes one published version.
type VersionRecord struct {
	Version      string
	TarballURL   string
	Dependencies manifest.OrderedMap // declaration order
}

// Client talks to a registry over HTTP.
type Client struct {
	http       *http.Client
	baseURL    string
	headers    map[string]string
	retries    int
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = httputil.NewClient(d) }
}

// WithToken sends token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.headers["Authorization"] = "Bearer " + token
		}
	}
}

// WithRetries enables n additional attempts for retryable failures.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Client) {
		c.retries = max(n, 0)
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient creates a Client for the registry at baseURL. A trailing slash
// is added when missing, since package names are appended verbatim.
func NewClient(baseURL string, opts ...Option) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		http:       httputil.NewClient(0),
		baseURL:    baseURL,
		headers:    map[string]string{"Accept": "application/json"},
		retryDelay: httputil.DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the registry base URL, always ending in "/".
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient returns the HTTP client, for reuse by tarball downloads.
func (c *Client) HTTPClient() *http.Client { return c.http }

// FetchMetadata retrieves the metadata document for name.
func (c *Client) FetchMetadata(ctx context.Context, name string) (*Metadata, error) {
	url := c.baseURL + name

	var meta *Metadata
	err := httputil.Retry(ctx, c.retries+1, c.retryDelay, func() error {
		m, err := c.fetch(ctx, url, name)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) fetch(ctx context.Context, url, name string) (*Metadata, error) {
	resp, err := httputil.Get(ctx, c.http, url, c.headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !httputil.StatusOK(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := errors.New(errors.ErrCodeNetwork, "fetch metadata for %s: status %d", name, resp.StatusCode)
		if resp.StatusCode >= 500 {
			return nil, httputil.Retryable(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, httputil.Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "read metadata for %s", name))
	}
	return parseMetadata(name, body)
}

type metadataDoc struct {
	Name     string                `json:"name"`
	DistTags map[string]string     `json:"dist-tags"`
	Versions map[string]versionDoc `json:"versions"`
}

type versionDoc struct {
	Version string `json:"version"`
	Dist    struct {
		Tarball string `json:"tarball"`
	} `json:"dist"`
	Dependencies manifest.OrderedMap `json:"dependencies"`
}

func parseMetadata(name string, body []byte) (*Metadata, error) {
	var doc metadataDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMetadataParse, err, "parse metadata for %s", name)
	}
	if doc.DistTags == nil {
		return nil, errors.New(errors.ErrCodeMetadataParse, "metadata for %s has no dist-tags", name)
	}
	if doc.Versions == nil {
		return nil, errors.New(errors.ErrCodeMetadataParse, "metadata for %s has no versions", name)
	}

	meta := &Metadata{
		Name:     doc.Name,
		DistTags: doc.DistTags,
		Versions: make(map[string]VersionRecord, len(doc.Versions)),
	}
	if meta.Name == "" {
		meta.Name = name
	}
	for v, d := range doc.Versions {
		meta.Versions[v] = VersionRecord{
			Version:      v,
			TarballURL:   d.Dist.Tarball,
			Dependencies: d.Dependencies,
		}
	}
	return meta, nil
}
