package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// envOverrides mirrors Settings with pointer fields so an unset variable
// leaves the file value in place.
type envOverrides struct {
	BeaconURL         *string            `env:"UITRACE_BEACON_URL, noinit"`
	FlushInterval     *time.Duration     `env:"UITRACE_FLUSH_INTERVAL, noinit"`
	ErrorLimit        *int               `env:"UITRACE_ERROR_LIMIT, noinit"`
	MinEvents         *int               `env:"UITRACE_MIN_EVENTS, noinit"`
	MaxLength         *int               `env:"UITRACE_MAX_LENGTH, noinit"`
	ExpectedBatchSize *int               `env:"UITRACE_EXPECTED_BATCH_SIZE, noinit"`
	Encoding          *string            `env:"UITRACE_ENCODING, noinit"`
	Gzip              *bool              `env:"UITRACE_GZIP, noinit"`
	KeysToIgnore      *[]string          `env:"UITRACE_KEYS_TO_IGNORE, noinit"`
	DisableSending    *bool              `env:"UITRACE_DISABLE_SENDING, noinit"`
	Headers           *map[string]string `env:"UITRACE_HEADERS, noinit"`
}

// ApplyEnv overlays UITRACE_* environment variables on s and validates
// the result. Durations use time.ParseDuration syntax, lists are comma
// separated and headers are written as "Name:value,Other:value".
func ApplyEnv(ctx context.Context, s Settings) (Settings, error) {
	return applyEnv(ctx, s, envconfig.OsLookuper())
}

func applyEnv(ctx context.Context, s Settings, l envconfig.Lookuper) (Settings, error) {
	var e envOverrides
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &e, Lookuper: l}); err != nil {
		return Settings{}, fmt.Errorf("%w: environment: %v", ErrInvalidSetting, err)
	}

	set(&s.BeaconURL, e.BeaconURL)
	set(&s.FlushInterval, e.FlushInterval)
	set(&s.ErrorLimit, e.ErrorLimit)
	set(&s.MinEvents, e.MinEvents)
	set(&s.MaxLength, e.MaxLength)
	set(&s.ExpectedBatchSize, e.ExpectedBatchSize)
	set(&s.Encoding, e.Encoding)
	set(&s.Gzip, e.Gzip)
	set(&s.KeysToIgnore, e.KeysToIgnore)
	set(&s.DisableSending, e.DisableSending)
	set(&s.Headers, e.Headers)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
