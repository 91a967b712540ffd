// Package collector receives uitrace beacons over HTTP and hands them to a
// sink, typically the SQLite transport. It accepts both wire formats the
// sender produces: JSON arrays POSTed (optionally gzip encoded) and
// index-suffixed query strings sent as GET requests.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randalmurphal/uitrace/pkg/uitrace/event"
	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
)

// Sink stores decoded batches. *transport.SQLiteTransport satisfies it.
type Sink interface {
	Transmit(ctx context.Context, b sender.Batch) error
}

// Rejection reasons reported on the rejected counter.
const (
	reasonMethod    = "method"
	reasonTooLarge  = "too_large"
	reasonEncoding  = "encoding"
	reasonMalformed = "malformed"
	reasonInvalid   = "invalid"
	reasonSink      = "sink"
)

// Config configures a Handler.
type Config struct {
	// Sink stores accepted batches. Required.
	Sink Sink

	// MaxBodyBytes bounds a decoded request body.
	// Default: 1 MiB
	MaxBodyBytes int64

	// Registerer receives the collector's metrics. Nil skips registration.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// Handler is an http.Handler accepting beacon batches.
type Handler struct {
	sink     Sink
	maxBody  int64
	logger   *slog.Logger
	beacons  *prometheus.CounterVec
	events   *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

var _ http.Handler = (*Handler)(nil)

// New creates a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Sink == nil {
		return nil, errors.New("collector: sink is required")
	}
	h := &Handler{
		sink:    cfg.Sink,
		maxBody: cfg.MaxBodyBytes,
		logger:  cfg.Logger,
		beacons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "collector",
			Name:      "beacons_total",
			Help:      "Accepted beacon requests by encoding.",
		}, []string{"encoding"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "collector",
			Name:      "events_total",
			Help:      "Accepted events by type.",
		}, []string{"event_type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "collector",
			Name:      "rejected_total",
			Help:      "Rejected beacon requests by reason.",
		}, []string{"reason"}),
	}
	if h.maxBody <= 0 {
		h.maxBody = 1 << 20
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if cfg.Registerer != nil {
		for _, c := range []prometheus.Collector{h.beacons, h.events, h.rejected} {
			if err := cfg.Registerer.Register(c); err != nil {
				return nil, fmt.Errorf("register collector metrics: %w", err)
			}
		}
	}
	return h, nil
}

// ServeHTTP implements http.Handler. Accepted beacons get 204 No Content.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		b        sender.Batch
		encoding string
		err      error
		reason   string
	)
	switch r.Method {
	case http.MethodGet:
		encoding = "query"
		b, reason, err = decodeQuery(r.URL.RawQuery)
	case http.MethodPost:
		encoding = "json"
		b, reason, err = h.decodeBody(r)
	default:
		w.Header().Set("Allow", "GET, POST")
		h.reject(w, reasonMethod, http.StatusMethodNotAllowed, fmt.Errorf("method %s", r.Method))
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		if reason == reasonTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		h.reject(w, reason, status, err)
		return
	}

	if err := h.sink.Transmit(r.Context(), b); err != nil {
		h.reject(w, reasonSink, http.StatusInternalServerError, err)
		return
	}

	h.beacons.WithLabelValues(encoding).Inc()
	for _, evt := range b.Events {
		h.events.WithLabelValues(string(evt.Type)).Inc()
	}
	h.logger.Debug("beacon accepted",
		slog.String("encoding", encoding),
		slog.Int("events", len(b.Events)),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reject(w http.ResponseWriter, reason string, status int, err error) {
	h.rejected.WithLabelValues(reason).Inc()
	h.logger.Warn("beacon rejected",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	http.Error(w, err.Error(), status)
}

func (h *Handler) decodeBody(r *http.Request) (sender.Batch, string, error) {
	var body io.Reader = r.Body
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return sender.Batch{}, reasonEncoding, fmt.Errorf("gzip body: %w", err)
		}
		defer zr.Close()
		body = zr
	}

	data, err := io.ReadAll(io.LimitReader(body, h.maxBody+1))
	if err != nil {
		return sender.Batch{}, reasonEncoding, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > h.maxBody {
		return sender.Batch{}, reasonTooLarge, fmt.Errorf("body exceeds %d bytes", h.maxBody)
	}

	var events []*event.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return sender.Batch{}, reasonMalformed, fmt.Errorf("decode events: %w", err)
	}
	if err := checkEvents(events); err != nil {
		return sender.Batch{}, reasonInvalid, err
	}
	return sender.Batch{Events: events, Payload: data, ContentType: "application/json"}, "", nil
}

// numericKeys are decoded from query strings as integers.
var numericKeys = map[string]bool{"bts": true, "start": true, "stop": true}

// decodeQuery rebuilds events from an index-suffixed query string.
func decodeQuery(raw string) (sender.Batch, string, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return sender.Batch{}, reasonMalformed, fmt.Errorf("parse query: %w", err)
	}

	grouped := make(map[int]map[string]any)
	for key, vs := range values {
		dot := strings.LastIndexByte(key, '.')
		if dot < 0 || len(vs) == 0 {
			continue
		}
		index, err := strconv.Atoi(key[dot+1:])
		if err != nil || index < 0 {
			continue
		}
		name, v := key[:dot], vs[0]
		fields := grouped[index]
		if fields == nil {
			fields = make(map[string]any)
			grouped[index] = fields
		}
		fields[name] = queryField(name, v)
	}

	indexes := make([]int, 0, len(grouped))
	for i := range grouped {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	events := make([]*event.Event, 0, len(indexes))
	for _, i := range indexes {
		data, err := json.Marshal(grouped[i])
		if err != nil {
			return sender.Batch{}, reasonMalformed, fmt.Errorf("event %d: %w", i, err)
		}
		evt := new(event.Event)
		if err := json.Unmarshal(data, evt); err != nil {
			return sender.Batch{}, reasonMalformed, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, evt)
	}
	if err := checkEvents(events); err != nil {
		return sender.Batch{}, reasonInvalid, err
	}
	return sender.Batch{Events: events, Payload: []byte(raw), ContentType: "application/x-www-form-urlencoded"}, "", nil
}

func queryField(name, v string) any {
	if numericKeys[name] {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if name == "first" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}

func checkEvents(events []*event.Event) error {
	if len(events) == 0 {
		return errors.New("beacon carries no events")
	}
	for i, evt := range events {
		if evt == nil || evt.EventID == "" || evt.Type == "" {
			return fmt.Errorf("event %d lacks eId or eType", i)
		}
	}
	return nil
}
