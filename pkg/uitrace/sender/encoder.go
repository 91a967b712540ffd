package sender

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
)

// Encoder turns finished events into a transmittable payload.
// Events are encoded one at a time so the sender can track the payload
// size incrementally.
type Encoder interface {
	// EncodeEvent encodes one event's fields at position index in the batch.
	EncodeEvent(fields map[string]any, index int) ([]byte, error)

	// Join assembles encoded events into the final payload.
	Join(parts [][]byte) []byte

	// Overhead returns the bytes Join adds around n parts.
	Overhead(n int) int

	// ContentType is the MIME type of the joined payload.
	ContentType() string
}

// JSONEncoder encodes a batch as a JSON array of flat event objects.
type JSONEncoder struct{}

// EncodeEvent implements Encoder.
func (JSONEncoder) EncodeEvent(fields map[string]any, _ int) ([]byte, error) {
	return json.Marshal(fields)
}

// Join implements Encoder.
func (JSONEncoder) Join(parts [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(bytes.Join(parts, []byte{','}))
	buf.WriteByte(']')
	return buf.Bytes()
}

// Overhead implements Encoder.
func (JSONEncoder) Overhead(n int) int {
	if n <= 0 {
		return 2
	}
	return 2 + n - 1
}

// ContentType implements Encoder.
func (JSONEncoder) ContentType() string {
	return "application/json"
}

// QueryEncoder encodes a batch as a URL query string where every key is
// suffixed with the event's index in the batch ("eId.0=...&eId.1=...").
// It suits GET beacons, where MaxLength is a URL length budget.
type QueryEncoder struct{}

// EncodeEvent implements Encoder. Keys are sorted for stable output.
func (QueryEncoder) EncodeEvent(fields map[string]any, index int) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	suffix := "." + strconv.Itoa(index)
	var buf bytes.Buffer
	for _, k := range keys {
		v, err := queryValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(k + suffix))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(v))
	}
	return buf.Bytes(), nil
}

// Join implements Encoder.
func (QueryEncoder) Join(parts [][]byte) []byte {
	return bytes.Join(parts, []byte{'&'})
}

// Overhead implements Encoder.
func (QueryEncoder) Overhead(n int) int {
	if n <= 1 {
		return 0
	}
	return n - 1
}

// ContentType implements Encoder.
func (QueryEncoder) ContentType() string {
	return "application/x-www-form-urlencoded"
}

func queryValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
