package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIPIDPatternZero(t *testing.T) {
	assert.Equal(t, IPIDZero, classifyIPIDPattern([]uint16{0, 0, 0, 0}))
}

func TestClassifyIPIDPatternFixed(t *testing.T) {
	assert.Equal(t, IPIDFixed, classifyIPIDPattern([]uint16{4660, 4660, 4660}))
}

func TestClassifyIPIDPatternIncremental(t *testing.T) {
	assert.Equal(t, IPIDIncremental, classifyIPIDPattern([]uint16{100, 101, 102, 103}))
}

func TestClassifyIPIDPatternIncrementalWrapsAround(t *testing.T) {
	assert.Equal(t, IPIDIncremental, classifyIPIDPattern([]uint16{65534, 65535, 0, 1}))
}

func TestClassifyIPIDPatternRandom(t *testing.T) {
	assert.Equal(t, IPIDRandom, classifyIPIDPattern([]uint16{1000, 42, 60000, 7}))
}

func TestClassifyIPIDPatternUnknownOnShortSamples(t *testing.T) {
	assert.Equal(t, IPIDUnknown, classifyIPIDPattern(nil))
	assert.Equal(t, IPIDUnknown, classifyIPIDPattern([]uint16{5}))
}

func TestOLSFitRecoversExactLinearRelation(t *testing.T) {
	t0 := int64(1_000_000)
	samples := make([]timestampSample, 0, 5)
	for i := int64(0); i < 5; i++ {
		localUs := t0 + i*1000*1000 // 1s steps, in microseconds
		remote := uint32(2000 + i*1000)
		samples = append(samples, timestampSample{localUs: localUs, remote: remote})
	}

	m, _, stddev := olsFit(samples)

	// remote advances 1000 per 1000ms step -> slope of 1.0 ms-per-ms.
	assert.InDelta(t, 1.0, m, 1e-9)
	assert.InDelta(t, 0, stddev, 1e-9)
}

func TestOLSFitDegenerateSamplesReturnsIdentity(t *testing.T) {
	samples := []timestampSample{
		{localUs: 1000, remote: 5},
		{localUs: 1000, remote: 5},
	}

	m, b, stddev := olsFit(samples)

	assert.Equal(t, 1.0, m)
	assert.Equal(t, 0.0, b)
	assert.Equal(t, 0.0, stddev)
}

func TestClassifySSHFlavor(t *testing.T) {
	cases := map[string]string{
		"SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.4": "linux_ubuntu",
		"SSH-2.0-OpenSSH_7.9p1 Debian-10+deb10u2":  "linux_debian",
		"SSH-2.0-OpenSSH_9.3":                      "openssh_generic",
		"SSH-2.0-dropbear_2020.81":                 "embedded_dropbear",
		"SSH-2.0-RomSShell_5.40":                   "unknown",
	}
	for banner, want := range cases {
		assert.Equal(t, want, classifySSHFlavor(banner), banner)
	}
}

func TestActiveProbeBatteryCoversT1ThroughT7(t *testing.T) {
	battery := activeProbeBattery()
	names := make([]string, len(battery))
	for i, spec := range battery {
		names[i] = spec.name
	}
	assert.Equal(t, []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7"}, names)
}

func TestPassiveAccumulatorSummarizeEmpty(t *testing.T) {
	p := NewPassiveAccumulator()
	assert.Nil(t, p.Summarize())
}

func TestPassiveAccumulatorSummarizeMostCommonValues(t *testing.T) {
	p := NewPassiveAccumulator()
	base := time.Now()
	p.Observe(PassiveObservation{TTL: 64, MSS: 1460, Window: 29200, DF: true, OptionKinds: []uint8{2, 4, 8}, WindowScale: 7, At: base})
	p.Observe(PassiveObservation{TTL: 64, MSS: 1460, Window: 29200, DF: true, OptionKinds: []uint8{2, 4, 8}, WindowScale: 7, At: base.Add(time.Second)})
	p.Observe(PassiveObservation{TTL: 128, MSS: 1380, Window: 8192, DF: false, OptionKinds: []uint8{2}, WindowScale: 0, At: base.Add(2 * time.Second)})

	f := p.Summarize()

	assert.Equal(t, 3, f.Samples)
	assert.Equal(t, uint8(64), f.MostCommonTTL)
	assert.Equal(t, uint16(1460), f.MostCommonMSS)
	assert.Equal(t, uint16(29200), f.MostCommonWindow)
	assert.True(t, f.MostCommonDF)
	assert.Equal(t, uint8(7), f.WindowScale)
	assert.Equal(t, 2*time.Second, f.EstimatedUptime)
}

func TestOptionKindsKeyDistinguishesOrderAndContent(t *testing.T) {
	assert.Equal(t, optionKindsKey([]uint8{2, 4}), optionKindsKey([]uint8{2, 4}))
	assert.NotEqual(t, optionKindsKey([]uint8{2, 4}), optionKindsKey([]uint8{4, 2}))
	assert.NotEqual(t, optionKindsKey([]uint8{2, 4}), optionKindsKey([]uint8{2}))
}

func TestMostCommonHelpersPickHighestCount(t *testing.T) {
	assert.Equal(t, uint8(64), mostCommonUint8(map[uint8]int{64: 5, 128: 2}))
	assert.Equal(t, uint16(1460), mostCommonUint16(map[uint16]int{1460: 3, 1380: 1}))
	assert.Equal(t, "linux_ubuntu", mostCommonString(map[string]int{"linux_ubuntu": 4, "unknown": 1}))
}
