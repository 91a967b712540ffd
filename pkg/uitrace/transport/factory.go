// Package transport delivers encoded uitrace batches to a collector.
//
// Supported beacon URLs:
//   - "http://host/path", "https://host/path": HTTPTransport
//   - "ws://host/path", "wss://host/path": WebSocketTransport
//   - "sqlite:///path/to/file.db", "sqlite://file.db": SQLiteTransport
package transport

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
)

// Options tune transports built by NewFromURL.
type Options struct {
	// Gzip compresses HTTP POST bodies.
	Gzip bool

	// Headers are added to every HTTP request.
	Headers map[string]string
}

// NewFromURL creates a transport based on the beacon URL scheme.
func NewFromURL(rawURL string, opts Options) (sender.Transport, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return nil, ErrEmptyURL
	}

	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return NewHTTP(HTTPConfig{URL: u, Gzip: opts.Gzip, Headers: opts.Headers}), nil

	case strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"):
		return NewWebSocket(u), nil

	case strings.HasPrefix(lower, "sqlite://"):
		path := u[len("sqlite://"):]
		if path == "" {
			return nil, fmt.Errorf("sqlite beacon URL %q: %w", rawURL, ErrEmptyURL)
		}
		t, err := NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("sqlite beacon URL %q: %w", rawURL, err)
		}
		return t, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, rawURL)
}
