package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetString(t *testing.T) {
	assert.Equal(t, "10.0.0.1", Target{Host: "10.0.0.1"}.String())
	assert.Equal(t, "router.lan (10.0.0.1)", Target{Host: "10.0.0.1", Hostname: "router.lan"}.String())
	assert.Equal(t, "10.0.0.1", Target{Host: "10.0.0.1", Hostname: "10.0.0.1"}.String())
}

func TestTargetIP(t *testing.T) {
	assert.NotNil(t, Target{Host: "192.168.1.1"}.IP())
	assert.Nil(t, Target{Host: "not-an-ip"}.IP())
}

func TestBannerString(t *testing.T) {
	b := Banner{Bytes: []byte("SSH-2.0-OpenSSH_9.3\r\n")}
	assert.Equal(t, "SSH-2.0-OpenSSH_9.3\r\n", b.String())
}

func TestLabelForBuckets(t *testing.T) {
	assert.Equal(t, ConfidenceCertain, LabelFor(0.95))
	assert.Equal(t, ConfidenceCertain, LabelFor(0.90))
	assert.Equal(t, ConfidenceHigh, LabelFor(0.80))
	assert.Equal(t, ConfidenceMedium, LabelFor(0.60))
	assert.Equal(t, ConfidenceLow, LabelFor(0.10))
}
