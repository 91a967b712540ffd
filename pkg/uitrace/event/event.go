// Package event defines the correlated UI event record that uitrace
// transmits to a collector, and the identifier source used to name events.
//
// Events are correlated through three identifiers:
//   - EventID (eId): unique per event
//   - TraceID (tId): the id of the user action at the root of the chain
//   - ParentID (pId): the nearest pending ancestor event, or the trace id
//
// Field names on the wire are deliberately short; beacons are often sent
// as query strings where every byte counts.
package event

import (
	"encoding/json"
	"maps"
)

// Kind identifies what a UI occurrence was.
type Kind string

const (
	KindAction      Kind = "action"
	KindLoad        Kind = "load"
	KindDataRequest Kind = "dataRequest"
	KindError       Kind = "error"
)

// Common status values written on finished events.
const (
	StatusReady      = "Ready"
	StatusNavigation = "Navigation"
)

// Event is one correlated occurrence.
//
// Start and Stop are milliseconds relative to the session start; BrowserTS
// is the absolute epoch time in milliseconds when the event began.
type Event struct {
	EventID       string `json:"eId"`
	TraceID       string `json:"tId"`
	ParentID      string `json:"pId,omitempty"`
	Type          Kind   `json:"eType"`
	Description   string `json:"eDesc,omitempty"`
	ComponentType string `json:"cmpType,omitempty"`
	ComponentID   string `json:"cmpId,omitempty"`
	Hierarchy     string `json:"cmpH,omitempty"`
	AppName       string `json:"appName,omitempty"`
	TabID         string `json:"tabId,omitempty"`
	Status        string `json:"status,omitempty"`
	BrowserTS     int64  `json:"bts"`
	Start         int64  `json:"start"`
	Stop          int64  `json:"stop"`

	// Kind-specific fields.
	URL            string `json:"url,omitempty"`
	Error          string `json:"error,omitempty"`
	First          *bool  `json:"first,omitempty"`
	RallyRequestID string `json:"rallyRequestId,omitempty"`

	// Params holds session default parameters and per-call misc data.
	// They are flattened into the encoded object; named fields win.
	Params map[string]any `json:"-"`
}

// Bool returns a pointer to b, for optional flags such as First.
func Bool(b bool) *bool {
	return &b
}

// Fields returns the event as a flat map of wire keys to values, with
// Params merged underneath the named fields.
func (e *Event) Fields() map[string]any {
	type alias Event
	data, err := json.Marshal((*alias)(e))
	if err != nil {
		return maps.Clone(e.Params)
	}
	named := make(map[string]any)
	if err := json.Unmarshal(data, &named); err != nil {
		return maps.Clone(e.Params)
	}

	out := make(map[string]any, len(e.Params)+len(named))
	maps.Copy(out, e.Params)
	maps.Copy(out, named)
	return out
}

// MarshalJSON implements json.Marshaler, flattening Params.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields())
}

// UnmarshalJSON implements json.Unmarshaler. Keys that are not named
// fields are collected into Params.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range wireKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Params = raw
	}
	return nil
}

var wireKeys = []string{
	"eId", "tId", "pId", "eType", "eDesc", "cmpType", "cmpId", "cmpH",
	"appName", "tabId", "status", "bts", "start", "stop",
	"url", "error", "first", "rallyRequestId",
}
