// Package discovery implements Host Discovery (§4.C): classifying each
// target Up or Down by trying ARP, ICMP, TCP and UDP evidence in order
// and stopping at the first positive result.
package discovery

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/scanerrors"
	"github.com/netrecon/netrecon/internal/throttle"
)

// Method names the technique that produced a liveness verdict.
type Method string

const (
	MethodARP     Method = "arp"
	MethodICMP    Method = "icmp"
	MethodTCPPing Method = "tcp_ping"
	MethodUDPPing Method = "udp_ping"
	MethodNone    Method = ""
)

// Result is the outcome of discovering one target.
type Result struct {
	Target models.Target
	Status models.HostStatus
	Method Method
	RTT    time.Duration
}

// Options configures a Discoverer. Zero values take the §4.C defaults.
type Options struct {
	Timeout  time.Duration
	Retries  int
	TCPPorts []uint16
	UDPPort  uint16
	Logger   logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 1
	}
	if len(o.TCPPorts) == 0 {
		o.TCPPorts = []uint16{80, 443, 22}
	}
	if o.UDPPort == 0 {
		o.UDPPort = 40125 // high, conventionally-unassigned port, expected closed
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

type arpResolver interface {
	Resolve(ip string, timeout time.Duration) (mac string, ok bool, err error)
}

// Discoverer classifies targets Up/Down. Probers are interface-typed so
// tests can substitute fakes without a real raw socket or network.
type Discoverer struct {
	opts Options
	tc   *throttle.Controller

	arp  arpResolver
	icmp icmpProber
	tcp  tcpProber
	udp  udpProber
}

// New builds a Discoverer. tc may be nil, in which case probes are not
// rate-limited (useful for tests).
func New(opts Options, tc *throttle.Controller) *Discoverer {
	opts.applyDefaults()
	return &Discoverer{
		opts: opts,
		tc:   tc,
		arp:  osARPResolver{},
		icmp: preferredICMPProber{},
		tcp:  connectTCPProber{},
		udp:  icmpUnreachableUDPProber{},
	}
}

// preferredICMPProber tries the raw socket path first and falls back to
// the unprivileged ping-socket path on PermissionDenied.
type preferredICMPProber struct{}

func (preferredICMPProber) Probe(ctx context.Context, ip net.IP, timeout time.Duration) (bool, time.Duration, error) {
	up, rtt, err := (rawICMPProber{}).Probe(ctx, ip, timeout)
	if scanerrors.Is(err, scanerrors.KindPermissionDenied) {
		return (unprivilegedICMPProber{}).Probe(ctx, ip, timeout)
	}
	return up, rtt, err
}

// Discover runs the ordered method cascade for one target, stopping at
// the first positive evidence, and returns Down only once every method
// has been exhausted across opts.Retries attempts each.
func (d *Discoverer) Discover(ctx context.Context, target models.Target) Result {
	ip := target.IP()
	if ip == nil {
		return Result{Target: target, Status: models.HostUnknown}
	}

	type attempt struct {
		method Method
		run    func() (bool, time.Duration, error)
	}
	attempts := []attempt{
		{MethodARP, func() (bool, time.Duration, error) {
			_, ok, err := d.arp.Resolve(ip.String(), d.opts.Timeout)
			return ok, 0, err
		}},
		{MethodICMP, func() (bool, time.Duration, error) { return d.icmp.Probe(ctx, ip, d.opts.Timeout) }},
		{MethodTCPPing, func() (bool, time.Duration, error) { return d.tcp.Probe(ctx, ip, d.opts.TCPPorts, d.opts.Timeout) }},
		{MethodUDPPing, func() (bool, time.Duration, error) { return d.udp.Probe(ctx, ip, d.opts.UDPPort, d.opts.Timeout) }},
	}

	for _, a := range attempts {
		for i := 0; i < d.opts.Retries; i++ {
			if ctx.Err() != nil {
				return Result{Target: target, Status: models.HostUnknown, Method: MethodNone}
			}
			if d.tc != nil {
				if err := d.tc.Acquire(ctx); err != nil {
					return Result{Target: target, Status: models.HostUnknown, Method: MethodNone}
				}
			}
			up, rtt, err := a.run()
			if d.tc != nil {
				d.tc.Report(outcomeFor(up, err))
			}
			if err != nil {
				d.opts.Logger.WithFields(logrus.Fields{
					"target": target.Host, "method": a.method, "attempt": i,
				}).WithError(err).Debug("discovery probe failed")
				continue
			}
			if up {
				return Result{Target: target, Status: models.HostUp, Method: a.method, RTT: rtt}
			}
		}
	}
	return Result{Target: target, Status: models.HostDown, Method: MethodNone}
}

func outcomeFor(up bool, err error) throttle.Outcome {
	if err != nil || !up {
		return throttle.Failure
	}
	return throttle.Success
}

// DiscoverAll runs Discover for every target with bounded concurrency,
// mirroring the worker-pool shape JedizLaPulga-NNS/internal/fingerprint
// uses for per-host fan-out.
func (d *Discoverer) DiscoverAll(ctx context.Context, targets []models.Target, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 100
	}
	results := make([]Result, len(targets))
	sem := make(chan struct{}, concurrency)
	done := make(chan struct{})
	remaining := len(targets)
	if remaining == 0 {
		return results
	}
	for i, target := range targets {
		sem <- struct{}{}
		go func(i int, target models.Target) {
			defer func() { <-sem; done <- struct{}{} }()
			results[i] = d.Discover(ctx, target)
		}(i, target)
	}
	for remaining > 0 {
		<-done
		remaining--
	}
	return results
}
