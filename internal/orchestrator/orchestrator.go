// Package orchestrator implements the Scan Orchestrator (§4.H): the
// top-level controller that normalizes inputs, drives host discovery,
// port scanning, service detection and OS fingerprinting for every
// target, and aggregates one HostResult per target.
//
// Sharing shape follows §9's "shared engines across async tasks" note:
// one Orchestrator is constructed per scan and its component handles
// (Scanner, Detector, Collector, the Throttle Controller, the
// Signature DB snapshot) are read-only after construction, so every
// per-host goroutine can use the same *Orchestrator concurrently
// without additional locking.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netrecon/netrecon/internal/discovery"
	"github.com/netrecon/netrecon/internal/fingerprint"
	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/portscan"
	"github.com/netrecon/netrecon/internal/scanerrors"
	"github.com/netrecon/netrecon/internal/servicedetect"
	"github.com/netrecon/netrecon/internal/sigdb"
	"github.com/netrecon/netrecon/internal/throttle"
)

// ScanConfig plans one scan: which targets, which ports, which
// technique, and which optional phases to run (§4.H step 1-5).
type ScanConfig struct {
	Targets   []models.Target
	Ports     []uint16
	Technique portscan.Technique

	EnableServiceDetection bool
	EnableOSFingerprint    bool

	HostConcurrency int // per-target port concurrency, default 128 (§5)
	TargetWorkers   int // hosts scanned in parallel, default 32

	MatchThreshold float64
}

func (c *ScanConfig) applyDefaults() {
	if c.Technique == "" {
		c.Technique = portscan.TechniqueConnect
	}
	if c.HostConcurrency <= 0 {
		c.HostConcurrency = 128
	}
	if c.TargetWorkers <= 0 {
		c.TargetWorkers = 32
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = 0.5
	}
}

// normalizeTargets deduplicates targets by literal host address,
// preserving first-seen order (§4.H step 1).
func normalizeTargets(targets []models.Target) []models.Target {
	seen := make(map[string]bool, len(targets))
	out := make([]models.Target, 0, len(targets))
	for _, t := range targets {
		if t.Host == "" || seen[t.Host] {
			continue
		}
		seen[t.Host] = true
		out = append(out, t)
	}
	return out
}

// ScanError is the structured, fatal failure §4.H's error policy
// escalates to the caller. It always carries whatever HostResults had
// already completed, so a downstream reporter can show "N of M hosts
// scanned" even on abort — grounded in serviceradar's
// ResultProcessor.GetSummary() partial-aggregation shape (see
// DESIGN.md).
type ScanError struct {
	Kind    scanerrors.Kind
	Message string
	Partial []models.HostResult
}

func (e *ScanError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Orchestrator drives a scan end to end (§4.H). One instance is built
// per scan; its fields are read-only after New returns.
type Orchestrator struct {
	throttle   *throttle.Controller
	discoverer *discovery.Discoverer
	scanner    *portscan.Scanner
	detector   *servicedetect.Detector
	collector  *fingerprint.Collector
	sigDB      *sigdb.Database
	logger     logrus.FieldLogger
}

// New builds an Orchestrator from already-constructed component
// handles. The caller owns wiring each component's own Options (timing
// profile, config file values, etc.); the Orchestrator only sequences
// them. tc and sigDB may be shared across multiple concurrent
// Orchestrators (§3 "Ownership": the DB snapshot and Throttle
// Controller are the only process-wide shared state).
func New(tc *throttle.Controller, disc *discovery.Discoverer, scanner *portscan.Scanner, detector *servicedetect.Detector, collector *fingerprint.Collector, db *sigdb.Database, logger logrus.FieldLogger) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		throttle:   tc,
		discoverer: disc,
		scanner:    scanner,
		detector:   detector,
		collector:  collector,
		sigDB:      db,
		logger:     logger,
	}
}

// Run executes cfg end to end, returning one HostResult per normalized
// target. On cooperative cancellation it returns the partial results
// collected so far wrapped in a *ScanError with Kind=Cancelled, per §5
// "a cancelled scan still emits partial results for targets already
// completed."
func (o *Orchestrator) Run(ctx context.Context, cfg ScanConfig) ([]models.HostResult, error) {
	cfg.applyDefaults()
	targets := normalizeTargets(cfg.Targets)
	if len(targets) == 0 {
		return nil, nil
	}

	results := make([]models.HostResult, len(targets))
	sem := make(chan struct{}, cfg.TargetWorkers)
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, target models.Target) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.scanOneHost(ctx, target, cfg)
		}(i, target)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return results, &ScanError{
			Kind:    scanerrors.KindCancelled,
			Message: "scan cancelled before all targets completed",
			Partial: results,
		}
	}
	return results, nil
}

// scanOneHost runs the full per-host pipeline: discovery, port scan,
// service detection, OS fingerprint + match (§4.H steps 2-6).
func (o *Orchestrator) scanOneHost(ctx context.Context, target models.Target, cfg ScanConfig) models.HostResult {
	start := time.Now()
	hr := models.HostResult{Target: target, Services: map[uint16]models.ServiceMatch{}}

	if ctx.Err() != nil {
		hr.Status = models.HostUnknown
		return hr
	}

	disc := o.discoverer.Discover(ctx, target)
	hr.Status = disc.Status
	if disc.Status != models.HostUp {
		hr.ScanDuration = time.Since(start)
		return hr
	}

	portResults := o.scanPorts(ctx, target, cfg)
	hr.PortResults = portResults

	if cfg.EnableServiceDetection && o.detector != nil {
		o.detectServices(ctx, target, portResults, hr.Services)
	}

	if cfg.EnableOSFingerprint && o.collector != nil && ctx.Err() == nil {
		if match, ok := o.fingerprintHost(ctx, target, portResults, cfg); ok {
			hr.OSMatches = []models.MatchResult{match}
		}
	}

	hr.ScanDuration = time.Since(start)
	return hr
}

func (o *Orchestrator) scanPorts(ctx context.Context, target models.Target, cfg ScanConfig) []models.PortResult {
	switch cfg.Technique {
	case portscan.TechniqueSYN:
		return o.scanner.ScanSYNPorts(ctx, target, cfg.Ports)
	case portscan.TechniqueUDP:
		return o.scanner.ScanUDPPorts(ctx, target, cfg.Ports)
	default:
		return o.scanner.ScanConnectPorts(ctx, target, cfg.Ports)
	}
}

func (o *Orchestrator) detectServices(ctx context.Context, target models.Target, portResults []models.PortResult, services map[uint16]models.ServiceMatch) {
	for _, pr := range portResults {
		if ctx.Err() != nil {
			return
		}
		if pr.Status != models.StatusOpen {
			continue
		}
		if pr.Banner != nil {
			services[pr.Port] = o.detector.DetectFromBanner(pr.Port, pr.Banner)
			continue
		}
		services[pr.Port] = o.detector.Detect(ctx, target, pr.Port)
	}
}

// fingerprintHost picks a representative open/closed port pair from
// portResults, collects the feature vector and scores it against the
// shared signature DB snapshot.
func (o *Orchestrator) fingerprintHost(ctx context.Context, target models.Target, portResults []models.PortResult, cfg ScanConfig) (models.MatchResult, bool) {
	var openPort, closedPort uint16
	protocolPorts := map[uint16]bool{}
	for _, pr := range portResults {
		if pr.Protocol != models.ProtoTCP {
			continue
		}
		switch pr.Status {
		case models.StatusOpen:
			if openPort == 0 {
				openPort = pr.Port
			}
			protocolPorts[pr.Port] = true
		case models.StatusClosed:
			if closedPort == 0 {
				closedPort = pr.Port
			}
		}
	}
	if openPort == 0 && closedPort == 0 {
		return models.MatchResult{}, false
	}

	fp, err := o.collector.Collect(ctx, target, openPort, closedPort, protocolPorts)
	if err != nil {
		o.logger.WithError(err).WithField("target", target.Host).Debug("os fingerprint collection failed")
		return models.MatchResult{}, false
	}
	if o.sigDB == nil {
		return models.MatchResult{}, false
	}
	return sigdb.Match(o.sigDB, fp, sigdb.MatchOptions{Threshold: cfg.MatchThreshold}), true
}
