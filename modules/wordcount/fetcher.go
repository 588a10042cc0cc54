package wordcount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ResourceKind selects which remote record a fetch addresses.
type ResourceKind string

const (
	// ResourceRegion addresses one regional aggregate record.
	ResourceRegion ResourceKind = "region"
	// ResourceUser addresses one writer's history record.
	ResourceUser ResourceKind = "user"
)

// PayloadFormat identifies the encoding of a fetched payload.
type PayloadFormat string

const (
	// FormatAuto sniffs the payload encoding from its first byte.
	FormatAuto PayloadFormat = ""
	// FormatXML is the legacy word-count API encoding.
	FormatXML PayloadFormat = "xml"
	// FormatJSON carries the same field names as JSON object keys.
	FormatJSON PayloadFormat = "json"
)

const maxPayloadBytes = 1 << 20

// RawPayload is one undecoded response body.
type RawPayload struct {
	Kind   ResourceKind
	Key    string
	Format PayloadFormat
	Body   []byte
}

// Fetcher performs bounded single-attempt GET requests against the word-count API.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	format     PayloadFormat
	paths      map[ResourceKind]string
}

// FetcherOption mutates fetcher configuration.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(fetcher *Fetcher) {
		if client != nil {
			fetcher.httpClient = client
		}
	}
}

// WithFetchTimeout bounds every fetch call.
func WithFetchTimeout(timeout time.Duration) FetcherOption {
	return func(fetcher *Fetcher) {
		if timeout > 0 {
			fetcher.timeout = timeout
		}
	}
}

// WithPayloadFormat declares the encoding served by the endpoint.
func WithPayloadFormat(format PayloadFormat) FetcherOption {
	return func(fetcher *Fetcher) {
		fetcher.format = format
	}
}

// WithResourcePath overrides the path template for one resource kind.
//
// The template is relative to the base URL and must contain `{key}`.
func WithResourcePath(kind ResourceKind, template string) FetcherOption {
	return func(fetcher *Fetcher) {
		if strings.Contains(template, "{key}") {
			fetcher.paths[kind] = strings.TrimLeft(template, "/")
		}
	}
}

// NewFetcher creates a fetcher rooted at baseURL.
func NewFetcher(baseURL string, options ...FetcherOption) (*Fetcher, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("new fetcher parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("new fetcher: base url scheme must be http or https")
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("new fetcher: base url host is required")
	}

	fetcher := &Fetcher{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultFetchTimeout,
		paths: map[ResourceKind]string{
			ResourceRegion: DefaultRegionPath,
			ResourceUser:   DefaultUserPath,
		},
	}
	for _, option := range options {
		option(fetcher)
	}

	return fetcher, nil
}

// Fetch issues exactly one GET for the addressed resource.
//
// Network failures, timeouts, and 429/5xx statuses yield *TransientFetchError.
// Unreadable bodies and other non-2xx statuses yield *MalformedResponseError.
func (f *Fetcher) Fetch(ctx context.Context, kind ResourceKind, key string) (RawPayload, error) {
	endpoint, err := f.resourceURL(kind, key)
	if err != nil {
		return RawPayload{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RawPayload{}, fmt.Errorf("fetch %s %q build request: %w", kind, key, err)
	}

	response, err := f.httpClient.Do(request)
	if err != nil {
		return RawPayload{}, &TransientFetchError{Kind: kind, Key: key, Cause: err}
	}
	defer func() { _ = response.Body.Close() }()

	switch {
	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= http.StatusInternalServerError:
		return RawPayload{}, &TransientFetchError{
			Kind:  kind,
			Key:   key,
			Cause: fmt.Errorf("upstream status %d", response.StatusCode),
		}
	case response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices:
		return RawPayload{}, &MalformedResponseError{
			Kind:  kind,
			Key:   key,
			Cause: fmt.Errorf("unexpected status %d", response.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxPayloadBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return RawPayload{}, &TransientFetchError{Kind: kind, Key: key, Cause: err}
		}
		return RawPayload{}, &MalformedResponseError{Kind: kind, Key: key, Cause: err}
	}

	return RawPayload{Kind: kind, Key: key, Format: f.format, Body: body}, nil
}

func (f *Fetcher) resourceURL(kind ResourceKind, key string) (string, error) {
	template, ok := f.paths[kind]
	if !ok {
		return "", fmt.Errorf("fetch: unsupported resource kind %q", kind)
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("fetch %s: empty key", kind)
	}

	return f.baseURL + "/" + strings.ReplaceAll(template, "{key}", url.PathEscape(key)), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
