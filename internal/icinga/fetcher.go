package icinga

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FetchError reports a transport-level failure talking to the backend.
type FetchError struct {
	Op  string
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("icinga: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// fetchError drops the *url.Error wrapper that net/http and net/url put
// around the cause; it repeats the raw URL, auth key included.
func fetchError(op, safeURL string, err error) *FetchError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return &FetchError{Op: op, URL: safeURL, Err: err}
}

type Fetcher struct {
	log    *slog.Logger
	client *http.Client
}

// NewFetcher returns a Fetcher. A zero timeout leaves the transport
// defaults in place.
func NewFetcher(log *slog.Logger, timeout time.Duration, insecureSkipVerify bool) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Fetcher{
		log: log,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Fetch GETs rawURL and returns the body on 200. Any other status code
// yields an empty body and a nil error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	safeURL := redact(rawURL)

	target, err := requestURL(rawURL)
	if err != nil {
		return "", fetchError("parse", safeURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fetchError("build request", safeURL, err)
	}
	req.URL = target
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fetchError("get", safeURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.log.Warn("unexpected status code from icinga",
			slog.String("url", safeURL),
			slog.Int("status_code", resp.StatusCode),
		)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fetchError("read body", safeURL, err)
	}

	return string(body), nil
}

// requestURL checks the scheme and pins the default port for it when
// none is given. The path is sent verbatim through Opaque since the
// Icinga dialect uses characters (|, [, ;) that must not be re-escaped.
func requestURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	var port string
	switch u.Scheme {
	case "http":
		port = "80"
	case "https":
		port = "443"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	if p := literalPath(rawURL); p != "" {
		u.Opaque = p
	}
	return u, nil
}

// literalPath returns the path of rawURL exactly as written.
func literalPath(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i < 0 {
		return ""
	}
	rest := rawURL[i+3:]

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return ""
	}
	path := rest[slash:]

	if end := strings.IndexAny(path, "?#"); end >= 0 {
		path = path[:end]
	}
	return path
}
