package sigdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrecon/netrecon/internal/fingerprint"
	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/packet"
)

func linux26Signature() OsSignature {
	return OsSignature{
		OSName: "Linux 2.6+", OSFamily: "linux",
		TCP: &TCPSignature{
			TTLRange: [2]uint8{64, 64}, WindowSizeRange: [2]uint32{29200, 29200},
			TypicalMSS: ptrU16(1460), DFFlag: ptrBool(true),
			TCPOptionOrder: []string{"mss", "sack_permitted", "timestamp", "nop", "window_scale"},
		},
		ConfidenceWeight: 0.95,
	}
}

func TestMatchLinuxFingerprintIsCertain(t *testing.T) {
	db := &Database{Signatures: []OsSignature{linux26Signature()}}
	fp := &fingerprint.OsFingerprint{
		TCPFeatures: &fingerprint.TCPFeatures{
			InitialTTL:  64,
			WindowSize:  29200,
			MSS:         1460,
			DF:          true,
			OptionOrder: []uint8{packet.OptMSS, packet.OptSACKPermitted, packet.OptTimestamp, packet.OptNOP, packet.OptWindowScale},
		},
	}

	result := Match(db, fp, MatchOptions{})

	require.NotNil(t, result.BestMatch)
	assert.Equal(t, "Linux 2.6+", result.BestMatch.OSName)
	assert.GreaterOrEqual(t, result.BestMatch.Total, 0.9)
	assert.Equal(t, models.ConfidenceCertain, result.BestMatch.Confidence)
	assert.True(t, result.FeatureCoverage["tcp"])
	assert.False(t, result.FeatureCoverage["icmp"])
}

func TestThresholdNeverImprovesBest(t *testing.T) {
	db := Builtin()
	fp := &fingerprint.OsFingerprint{
		TCPFeatures: &fingerprint.TCPFeatures{InitialTTL: 64, WindowSize: 29200, MSS: 1460, DF: true},
	}
	zero := Match(db, fp, MatchOptions{Threshold: 0.0})
	for _, thresh := range []float64{0.1, 0.5, 0.9} {
		other := Match(db, fp, MatchOptions{Threshold: thresh})
		assert.GreaterOrEqual(t, zero.BestMatch.Total, other.BestMatch.Total)
	}
}

func TestLCSRatio(t *testing.T) {
	assert.Equal(t, 1.0, lcsRatio([]string{"a", "b", "c"}, []string{"a", "b", "c"}))
	assert.Equal(t, 0.0, lcsRatio([]string{"a"}, []string{"b"}))
	assert.InDelta(t, 0.666, lcsRatio([]string{"a", "b", "c"}, []string{"a", "c"}), 0.01)
}

func TestClockSubScoreToleranceBands(t *testing.T) {
	exact, _, _ := clockSubScore(FreqClass100, &fingerprint.ClockSkew{EstimatedFreqHz: 100})
	assert.Equal(t, 1.0, exact)

	near, _, _ := clockSubScore(FreqClass100, &fingerprint.ClockSkew{EstimatedFreqHz: 115})
	assert.Equal(t, 0.5, near)

	far, _, _ := clockSubScore(FreqClass100, &fingerprint.ClockSkew{EstimatedFreqHz: 200})
	assert.Equal(t, 0.0, far)

	insufficient, _, _ := clockSubScore(FreqClass100, &fingerprint.ClockSkew{InsufficientData: true})
	assert.Equal(t, 0.0, insufficient)
}

func TestMatchWithNoSignaturesReturnsNilBest(t *testing.T) {
	db := &Database{}
	fp := &fingerprint.OsFingerprint{}
	result := Match(db, fp, MatchOptions{})
	assert.Nil(t, result.BestMatch)
	assert.Empty(t, result.ClosestMatches)
}
