package servicedetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netrecon/netrecon/internal/models"
)

func banner(s string) *models.Banner {
	return &models.Banner{Bytes: []byte(s), Encoding: "utf8", CollectedAt: time.Now()}
}

func TestDetectFromBannerOpenSSH(t *testing.T) {
	d := New(Options{}, DefaultSignatures())
	match := d.DetectFromBanner(22, banner("SSH-2.0-OpenSSH_8.9p1 Ubuntu-3\r\n"))

	assert.Equal(t, "OpenSSH", match.Name)
	assert.Equal(t, "8.9p1", match.Version)
	assert.Greater(t, match.Confidence, 0.5)
}

func TestDetectFromBannerUnknownBelowThreshold(t *testing.T) {
	d := New(Options{ConfidenceThreshold: 0.9}, DefaultSignatures())
	match := d.DetectFromBanner(80, banner("some nginx-like text but not a real match"))

	assert.Equal(t, "Unknown", match.Name)
}

func TestDetectFromBannerNilBannerIsUnknown(t *testing.T) {
	d := New(Options{}, DefaultSignatures())
	match := d.DetectFromBanner(80, nil)
	assert.Equal(t, "Unknown", match.Name)
}

func TestDetectFromBannerPreferredPortTieBreak(t *testing.T) {
	sigs := []ServiceSignature{
		{Name: "A", Pattern: "banner", Kind: MatchPartial, ConfidenceWeight: 0.8, PreferredPorts: map[uint16]bool{9999: true}},
		{Name: "B", Pattern: "banner", Kind: MatchPartial, ConfidenceWeight: 0.8, PreferredPorts: map[uint16]bool{80: true}},
	}
	// Both score 0.5*0.8 = 0.4, so the threshold is lowered to let them through.
	d := New(Options{ConfidenceThreshold: 0.3}, sigs)
	match := d.DetectFromBanner(80, banner("a banner"))
	assert.Equal(t, "B", match.Name)
}

func TestProbeForKnownPorts(t *testing.T) {
	assert.Contains(t, string(probeFor(80)), "GET /")
	assert.Nil(t, probeFor(3306))
	assert.NotEmpty(t, probeFor(23))
}
