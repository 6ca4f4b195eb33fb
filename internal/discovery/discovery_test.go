package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrecon/netrecon/internal/models"
)

type fakeARP struct {
	ok  bool
	err error
}

func (f fakeARP) Resolve(ip string, timeout time.Duration) (string, bool, error) {
	return "", f.ok, f.err
}

type fakeICMP struct {
	up  bool
	err error
}

func (f fakeICMP) Probe(ctx context.Context, ip net.IP, timeout time.Duration) (bool, time.Duration, error) {
	return f.up, time.Millisecond, f.err
}

type fakeTCP struct {
	up bool
}

func (f fakeTCP) Probe(ctx context.Context, ip net.IP, ports []uint16, timeout time.Duration) (bool, time.Duration, error) {
	return f.up, time.Millisecond, nil
}

type fakeUDP struct {
	up  bool
	err error
}

func (f fakeUDP) Probe(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) (bool, time.Duration, error) {
	return f.up, time.Millisecond, f.err
}

func newTestDiscoverer() *Discoverer {
	d := New(Options{Retries: 1, Timeout: 10 * time.Millisecond}, nil)
	d.arp = fakeARP{}
	d.icmp = fakeICMP{}
	d.tcp = fakeTCP{}
	d.udp = fakeUDP{}
	return d
}

func TestDiscoverStopsAtFirstPositiveARP(t *testing.T) {
	d := newTestDiscoverer()
	d.arp = fakeARP{ok: true}

	res := d.Discover(context.Background(), models.Target{Host: "10.0.0.5"})
	assert.Equal(t, models.HostUp, res.Status)
	assert.Equal(t, MethodARP, res.Method)
}

func TestDiscoverFallsThroughToICMP(t *testing.T) {
	d := newTestDiscoverer()
	d.arp = fakeARP{ok: false}
	d.icmp = fakeICMP{up: true}

	res := d.Discover(context.Background(), models.Target{Host: "10.0.0.6"})
	assert.Equal(t, models.HostUp, res.Status)
	assert.Equal(t, MethodICMP, res.Method)
}

func TestDiscoverFallsThroughToTCPPing(t *testing.T) {
	d := newTestDiscoverer()
	d.arp = fakeARP{ok: false}
	d.icmp = fakeICMP{up: false}
	d.tcp = fakeTCP{up: true}

	res := d.Discover(context.Background(), models.Target{Host: "10.0.0.7"})
	assert.Equal(t, models.HostUp, res.Status)
	assert.Equal(t, MethodTCPPing, res.Method)
}

func TestDiscoverDownWhenAllMethodsFail(t *testing.T) {
	d := newTestDiscoverer()
	res := d.Discover(context.Background(), models.Target{Host: "10.0.0.8"})
	assert.Equal(t, models.HostDown, res.Status)
}

func TestDiscoverUnresolvableHostnameIsUnknown(t *testing.T) {
	d := newTestDiscoverer()
	res := d.Discover(context.Background(), models.Target{Host: "not-an-ip", Hostname: "not-an-ip"})
	assert.Equal(t, models.HostUnknown, res.Status)
}

func TestDiscoverIgnoresProbeErrorsAndKeepsTrying(t *testing.T) {
	d := newTestDiscoverer()
	d.arp = fakeARP{err: errors.New("boom")}
	d.icmp = fakeICMP{up: true}

	res := d.Discover(context.Background(), models.Target{Host: "10.0.0.9"})
	assert.Equal(t, models.HostUp, res.Status)
	assert.Equal(t, MethodICMP, res.Method)
}

func TestDiscoverAllRunsEveryTarget(t *testing.T) {
	d := newTestDiscoverer()
	d.arp = fakeARP{ok: true}
	targets := []models.Target{{Host: "10.0.0.1"}, {Host: "10.0.0.2"}, {Host: "10.0.0.3"}}

	results := d.DiscoverAll(context.Background(), targets, 2)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, models.HostUp, r.Status)
	}
}

func TestDiscoverRespectsCancellation(t *testing.T) {
	d := newTestDiscoverer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Discover(ctx, models.Target{Host: "10.0.0.10"})
	assert.Equal(t, models.HostUnknown, res.Status)
}
