package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSetting indicates a setting outside its allowed range.
var ErrInvalidSetting = errors.New("invalid setting")

// Encoding names accepted by the encoding setting.
const (
	EncodingJSON  = "json"
	EncodingQuery = "query"
)

// Settings are the engine and sender options a configuration file can set.
// Keys use the same camelCase names as the engine options.
type Settings struct {
	BeaconURL         string
	FlushInterval     time.Duration
	ErrorLimit        int
	MinEvents         int
	MaxLength         int
	ExpectedBatchSize int
	Encoding          string
	Gzip              bool
	KeysToIgnore      []string
	DisableSending    bool
	Headers           map[string]string
}

// DefaultSettings are used for keys a configuration leaves out.
var DefaultSettings = Settings{
	ErrorLimit:        25,
	MinEvents:         25,
	ExpectedBatchSize: 4,
	Encoding:          EncodingJSON,
}

// defaultQueryMaxLength is the URL budget used by the query encoding
// when no maxLength is configured.
const defaultQueryMaxLength = 2000

// Decode extracts Settings from a Config, applying defaults. Every
// malformed key is reported; the errors wrap ErrInvalidSetting.
func Decode(c Config) (Settings, error) {
	s := DefaultSettings
	var d decoder

	field(&d, c.String, "beaconUrl", &s.BeaconURL)
	field(&d, c.Millis, "flushInterval", &s.FlushInterval)
	field(&d, c.Int, "errorLimit", &s.ErrorLimit)
	field(&d, c.Int, "minEvents", &s.MinEvents)
	field(&d, c.Int, "maxLength", &s.MaxLength)
	field(&d, c.Int, "expectedBatchSize", &s.ExpectedBatchSize)
	field(&d, c.String, "encoding", &s.Encoding)
	field(&d, c.Bool, "gzip", &s.Gzip)
	field(&d, c.StringSlice, "keysToIgnore", &s.KeysToIgnore)
	field(&d, c.Bool, "disableSending", &s.DisableSending)
	field(&d, c.StringMap, "headers", &s.Headers)

	if s.Encoding == EncodingQuery && !c.Has("maxLength") {
		s.MaxLength = defaultQueryMaxLength
	}
	d.errs = append(d.errs, s.problems()...)

	if err := errors.Join(d.errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports every setting outside its allowed range.
func (s Settings) Validate() error {
	return errors.Join(s.problems()...)
}

func (s Settings) problems() []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidSetting}, args...)...))
	}
	if s.Encoding != EncodingJSON && s.Encoding != EncodingQuery {
		fail("encoding %q", s.Encoding)
	}
	if s.ErrorLimit < 0 {
		fail("errorLimit %d", s.ErrorLimit)
	}
	if s.MinEvents <= 0 {
		fail("minEvents %d", s.MinEvents)
	}
	if s.MaxLength < 0 {
		fail("maxLength %d", s.MaxLength)
	}
	if s.ExpectedBatchSize <= 0 {
		fail("expectedBatchSize %d", s.ExpectedBatchSize)
	}
	if s.FlushInterval < 0 {
		fail("flushInterval %s", s.FlushInterval)
	}
	return errs
}

// decoder collects every problem in a document.
type decoder struct {
	errs []error
}

// field stores the value of key in dst when present and well typed.
func field[T any](d *decoder, get func(string) (T, bool, error), key string, dst *T) {
	v, ok, err := get(key)
	if err != nil {
		d.errs = append(d.errs, err)
		return
	}
	if ok {
		*dst = v
	}
}
