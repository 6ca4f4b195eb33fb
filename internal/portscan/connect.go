package portscan

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/throttle"
)

// ScanConnect performs a full TCP three-way handshake against one port,
// retrying with exponential backoff. Grounded directly on
// JedizLaPulga-NNS/internal/portscan.ScanPort, generalized to the
// PortResult contract and given retry/backoff per §4.D.
func (s *Scanner) ScanConnect(ctx context.Context, target models.Target, port uint16) models.PortResult {
	result := models.PortResult{Target: target, Port: port, Protocol: models.ProtoTCP, Timestamp: time.Now()}
	addr := net.JoinHostPort(target.Host, strconv.Itoa(int(port)))

	var lastErr error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt-1, s.opts.RetryDelay)):
			case <-ctx.Done():
				result.Status = models.StatusFiltered
				return result
			}
		}
		if s.tc != nil {
			if err := s.tc.Acquire(ctx); err != nil {
				result.Status = models.StatusFiltered
				return result
			}
		}

		start := time.Now()
		conn, err := (&net.Dialer{Timeout: s.opts.Timeout}).DialContext(ctx, "tcp", addr)
		rtt := time.Since(start)

		if err == nil {
			result.Status = models.StatusOpen
			result.Provenance = models.ProvenanceHandshake
			result.RTT = rtt
			result.Banner = readBanner(conn, s.opts.MaxBannerSize)
			conn.Close()
			s.reportOutcome(true)
			return result
		}

		if isConnRefused(err) {
			result.Status = models.StatusClosed
			result.RTT = rtt
			s.reportOutcome(true)
			return result
		}

		lastErr = err
		s.reportOutcome(false)
	}

	s.opts.Logger.WithError(lastErr).WithField("target", target.Host).Debug("tcp connect exhausted retries")
	result.Status = models.StatusFiltered
	return result
}

func readBanner(conn net.Conn, maxSize int) *models.Banner {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, maxSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return nil
	}
	return &models.Banner{Bytes: append([]byte(nil), buf[:n]...), Encoding: "binary", CollectedAt: time.Now()}
}

func (s *Scanner) reportOutcome(up bool) {
	if s.tc == nil {
		return
	}
	if up {
		s.tc.Report(throttle.Success)
	} else {
		s.tc.Report(throttle.Failure)
	}
}

// ScanConnectPorts scans every port against target concurrently, capped
// at s.opts.Concurrency, mirroring the worker-pool shape of
// JedizLaPulga-NNS/internal/portscan.Scanner.ScanPorts.
func (s *Scanner) ScanConnectPorts(ctx context.Context, target models.Target, ports []uint16) []models.PortResult {
	return s.scanPortsWith(ctx, target, ports, s.ScanConnect)
}

func (s *Scanner) scanPortsWith(ctx context.Context, target models.Target, ports []uint16, probe func(context.Context, models.Target, uint16) models.PortResult) []models.PortResult {
	results := make([]models.PortResult, len(ports))
	sem := make(chan struct{}, s.opts.Concurrency)
	var wg sync.WaitGroup
	for i, port := range ports {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, port uint16) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = probe(ctx, target, port)
		}(i, port)
	}
	wg.Wait()
	return results
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
