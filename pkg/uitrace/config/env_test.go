package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverridesFileValues(t *testing.T) {
	base := DefaultSettings
	base.BeaconURL = "https://collector.example.com/beacon"
	base.ErrorLimit = 10

	s, err := applyEnv(context.Background(), base, envconfig.MapLookuper(map[string]string{
		"UITRACE_BEACON_URL":     "http://localhost:8080/beacon",
		"UITRACE_FLUSH_INTERVAL": "2s",
		"UITRACE_GZIP":           "true",
		"UITRACE_KEYS_TO_IGNORE": "cmpH,appName",
		"UITRACE_HEADERS":        "X-Client:web",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/beacon", s.BeaconURL)
	assert.Equal(t, 2*time.Second, s.FlushInterval)
	assert.True(t, s.Gzip)
	assert.Equal(t, []string{"cmpH", "appName"}, s.KeysToIgnore)
	assert.Equal(t, map[string]string{"X-Client": "web"}, s.Headers)
	assert.Equal(t, 10, s.ErrorLimit, "unset variables keep the file value")
	assert.Equal(t, 25, s.MinEvents)
}

func TestApplyEnvValidates(t *testing.T) {
	_, err := applyEnv(context.Background(), DefaultSettings, envconfig.MapLookuper(map[string]string{
		"UITRACE_MIN_EVENTS": "0",
	}))
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = applyEnv(context.Background(), DefaultSettings, envconfig.MapLookuper(map[string]string{
		"UITRACE_ERROR_LIMIT": "lots",
	}))
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestApplyEnvFromProcess(t *testing.T) {
	t.Setenv("UITRACE_ENCODING", "query")
	t.Setenv("UITRACE_MAX_LENGTH", "1500")

	s, err := ApplyEnv(context.Background(), DefaultSettings)
	require.NoError(t, err)
	assert.Equal(t, EncodingQuery, s.Encoding)
	assert.Equal(t, 1500, s.MaxLength)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings.Validate())

	s := DefaultSettings
	s.Encoding = "xml"
	s.ExpectedBatchSize = 0
	err := s.Validate()
	assert.ErrorContains(t, err, `encoding "xml"`)
	assert.ErrorContains(t, err, "expectedBatchSize 0")
}
