package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
)

const formContentType = "application/x-www-form-urlencoded"

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// URL is the beacon endpoint.
	URL string

	// Gzip compresses POST bodies.
	Gzip bool

	// Client performs requests.
	// Default: a client with a 5s timeout
	Client *http.Client

	// Headers are added to every request.
	Headers map[string]string
}

// HTTPTransport delivers batches to an HTTP collector.
//
// Query-encoded batches are sent as GET requests with the payload as the
// query string, the way image beacons work. All other batches are POSTed.
type HTTPTransport struct {
	url     string
	gzip    bool
	client  *http.Client
	headers map[string]string
}

var _ sender.Transport = (*HTTPTransport)(nil)

// NewHTTP creates an HTTP transport.
func NewHTTP(cfg HTTPConfig) *HTTPTransport {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPTransport{
		url:     cfg.URL,
		gzip:    cfg.Gzip,
		client:  client,
		headers: cfg.Headers,
	}
}

// Endpoint implements sender.Transport.
func (t *HTTPTransport) Endpoint() string {
	return t.url
}

// Transmit implements sender.Transport.
func (t *HTTPTransport) Transmit(ctx context.Context, b sender.Batch) error {
	req, err := t.newRequest(ctx, b)
	if err != nil {
		return err
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: t.url}
	}
	return nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, b sender.Batch) (*http.Request, error) {
	if b.ContentType == formContentType {
		sep := "?"
		if strings.Contains(t.url, "?") {
			sep = "&"
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, t.url+sep+string(b.Payload), nil)
	}

	body := b.Payload
	if t.gzip {
		compressed, err := gzipBytes(body)
		if err != nil {
			return nil, fmt.Errorf("compress batch: %w", err)
		}
		body = compressed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", b.ContentType)
	if t.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	return req, nil
}

// Close implements sender.Transport.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
