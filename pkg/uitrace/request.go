package uitrace

import (
	"net/http"
	"strings"
)

// Correlation header names.
const (
	HeaderTraceID  = "X-Trace-Id"
	HeaderParentID = "X-Parent-Id"

	// RequestIDHeader carries the server's own id for a request.
	RequestIDHeader = "RallyRequestID"
)

// RequestMetadata is returned by BeginDataRequest. Forward Headers with
// the outgoing request so server-side spans attach to the client event.
type RequestMetadata struct {
	TraceID   string
	RequestID string
	Headers   map[string]string
}

// HeaderGetter is satisfied by XHR-like response objects.
type HeaderGetter interface {
	GetResponseHeader(name string) string
}

// RequestIDer is satisfied by responses that expose the server request id
// directly.
type RequestIDer interface {
	RequestID() string
}

// responseRequestID extracts the server-supplied request id from a
// response. Header bags are checked first, then header accessors, then a
// direct property.
func responseRequestID(response any) string {
	switch r := response.(type) {
	case nil:
		return ""
	case *http.Response:
		if r == nil {
			return ""
		}
		if v := r.Header.Get(RequestIDHeader); v != "" {
			return v
		}
	case http.Header:
		if v := r.Get(RequestIDHeader); v != "" {
			return v
		}
	case map[string]string:
		for k, v := range r {
			if strings.EqualFold(k, RequestIDHeader) && v != "" {
				return v
			}
		}
	}

	if g, ok := response.(HeaderGetter); ok {
		if v := g.GetResponseHeader(RequestIDHeader); v != "" {
			return v
		}
	}
	if p, ok := response.(RequestIDer); ok {
		return p.RequestID()
	}
	return ""
}

const webservicePath = "/webservice/"

// shortURL trims a request URL for the event: the query is dropped, and
// web service URLs keep only the part after /webservice/.
func shortURL(raw string) string {
	if raw == "" {
		return "unknown"
	}
	if i := strings.Index(raw, webservicePath); i >= 0 {
		raw = raw[i+len(webservicePath):]
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
