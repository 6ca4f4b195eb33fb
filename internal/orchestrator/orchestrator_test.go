package orchestrator

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrecon/netrecon/internal/discovery"
	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/portscan"
	"github.com/netrecon/netrecon/internal/servicedetect"
)

// listenAndGreet starts a loopback listener that writes greeting on
// every accepted connection, returning the chosen port.
func listenAndGreet(t *testing.T, greeting string) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte(greeting))
			conn.Close()
		}
	}()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return uint16(port)
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return uint16(port)
}

func newTestOrchestrator() *Orchestrator {
	disc := discovery.New(discovery.Options{Retries: 1, Timeout: 200 * time.Millisecond}, nil)
	scanner := portscan.New(portscan.Options{Timeout: 500 * time.Millisecond, Retries: 0, Concurrency: 10}, nil)
	detector := servicedetect.New(servicedetect.Options{}, servicedetect.DefaultSignatures())
	return New(nil, disc, scanner, detector, nil, nil, nil)
}

func TestRunOpenPortWithBannerIsDetectedAsOpenSSH(t *testing.T) {
	open := listenAndGreet(t, "SSH-2.0-OpenSSH_9.3\r\n")
	closed := closedPort(t)

	o := newTestOrchestrator()
	cfg := ScanConfig{
		Targets:                []models.Target{{Host: "127.0.0.1"}},
		Ports:                  []uint16{open, closed},
		Technique:              portscan.TechniqueConnect,
		EnableServiceDetection: true,
	}

	results, err := o.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)

	host := results[0]
	assert.Equal(t, models.HostUp, host.Status)
	require.Len(t, host.PortResults, 2)

	var openResult, closedResult *models.PortResult
	for i := range host.PortResults {
		switch host.PortResults[i].Port {
		case open:
			openResult = &host.PortResults[i]
		case closed:
			closedResult = &host.PortResults[i]
		}
	}
	require.NotNil(t, openResult)
	require.NotNil(t, closedResult)
	assert.Equal(t, models.StatusOpen, openResult.Status)
	assert.Equal(t, models.StatusClosed, closedResult.Status)

	svc, ok := host.Services[open]
	require.True(t, ok)
	assert.Equal(t, "OpenSSH", svc.Name)
	assert.Equal(t, "9.3", svc.Version)
	assert.GreaterOrEqual(t, svc.Confidence, 0.9)
}

func TestRunReturnsPartialResultsOnCancellation(t *testing.T) {
	open := listenAndGreet(t, "hello\r\n")
	o := newTestOrchestrator()
	cfg := ScanConfig{
		Targets:   []models.Target{{Host: "127.0.0.1"}},
		Ports:     []uint16{open},
		Technique: portscan.TechniqueConnect,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := o.Run(ctx, cfg)
	require.Error(t, err)
	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, results, scanErr.Partial)
}

func TestNormalizeTargetsDeduplicates(t *testing.T) {
	in := []models.Target{{Host: "10.0.0.1"}, {Host: "10.0.0.1"}, {Host: "10.0.0.2"}, {Host: ""}}
	out := normalizeTargets(in)
	assert.Len(t, out, 2)
}
