package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, warnings, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, Default(), cfg)
}

func TestParseOverridesAndNestedTechniques(t *testing.T) {
	data := `
[scanner]
initial_pps = 500
max_pps = 5000

[scanner.tcp_syn]
enabled = true
retries = 5

[throttling]
success_threshold = 0.9
failure_threshold = 0.7
rate_increase_factor = 2.0
rate_decrease_factor = 0.25

[detection]
max_banner_size = 2048
`
	cfg, warnings, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.EqualValues(t, 500, cfg.Scanner.InitialPPS)
	assert.EqualValues(t, 5000, cfg.Scanner.MaxPPS)
	assert.True(t, cfg.TCPSyn.Enabled)
	assert.EqualValues(t, 5, cfg.TCPSyn.Retries)
	// Untouched technique retains its default.
	assert.True(t, cfg.TCPConnect.Enabled)
	assert.InDelta(t, 0.9, cfg.Throttling.SuccessThreshold, 0.0001)
	assert.EqualValues(t, 2048, cfg.Detection.MaxBannerSize)
}

func TestParseUnknownSectionIsWarningNotFatal(t *testing.T) {
	data := `
[scanner]
initial_pps = 100

[bogus_section]
foo = "bar"
`
	cfg, warnings, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "bogus_section", warnings[0].Key)
	assert.EqualValues(t, 100, cfg.Scanner.InitialPPS)
}

func TestParseUnknownKeyInsideKnownSectionIsWarningNotFatal(t *testing.T) {
	data := `
[scanner]
initial_pps = 100
bogus_key = 1
`
	cfg, warnings, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "scanner.bogus_key", warnings[0].Key)
	assert.EqualValues(t, 100, cfg.Scanner.InitialPPS)
}

func TestParseUnknownKeyInsideNestedTechniqueTable(t *testing.T) {
	data := `
[scanner.tcp_syn]
enabled = true
bogus_key = 1
`
	_, warnings, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "scanner.tcp_syn.bogus_key", warnings[0].Key)
}

func TestValidateRejectsOutOfRangeThresholds(t *testing.T) {
	data := `
[throttling]
success_threshold = 1.5
failure_threshold = 0.8
rate_increase_factor = 1.5
rate_decrease_factor = 0.5
`
	_, _, err := Parse([]byte(data))
	require.Error(t, err)
}
