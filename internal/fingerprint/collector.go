package fingerprint

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/packet"
	"github.com/netrecon/netrecon/internal/scanerrors"
	"github.com/netrecon/netrecon/internal/throttle"
)

// Options configures which sub-vectors a Collector gathers and how
// hard it probes for them, mirroring the [os_fingerprint] config
// section (§6) one-for-one.
type Options struct {
	EnableTCP          bool
	EnableICMP         bool
	EnableUDP          bool
	EnableProtocol     bool
	EnableClockSkew    bool
	EnablePassive      bool
	EnableActiveProbes bool

	ProbeTimeout       time.Duration
	ActiveProbeTimeout time.Duration
	ClockSkewSamples   uint32
	SeqProbesCount     uint32

	Logger *logrus.Logger
}

func (o *Options) applyDefaults() {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 2 * time.Second
	}
	if o.ActiveProbeTimeout <= 0 {
		o.ActiveProbeTimeout = 2 * time.Second
	}
	if o.ClockSkewSamples == 0 {
		o.ClockSkewSamples = 20
	}
	if o.SeqProbesCount == 0 {
		o.SeqProbesCount = 6
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
}

// Collector gathers an OsFingerprint for one target, fanning out across
// whichever sub-vectors Options enables. It needs CAP_NET_RAW /
// administrator for every sub-vector except ProtocolHints, which only
// needs a plain TCP dial.
type Collector struct {
	opts Options
	tc   *throttle.Controller
	ctx  context.Context
}

// New builds a Collector. Pass a nil throttle.Controller to probe
// unthrottled (only appropriate for isolated lab use).
func New(opts Options, tc *throttle.Controller) *Collector {
	opts.applyDefaults()
	return &Collector{opts: opts, tc: tc}
}

// Collect gathers every enabled sub-vector against target, using
// openPort as the confirmed-open port to probe (from the Port
// Scanner's results) and closedPort as a port already classified
// Closed. protocolPorts names every open port worth an application-
// layer probe. Passive is never populated here; feed it separately via
// a PassiveAccumulator and attach the summary to the result.
func (c *Collector) Collect(ctx context.Context, target models.Target, openPort, closedPort uint16, protocolPorts map[uint16]bool) (*OsFingerprint, error) {
	c.ctx = ctx
	start := time.Now()
	dst := target.IP()
	if dst == nil {
		return nil, scanerrors.New(scanerrors.KindInvalidTarget, "%q does not resolve to a literal IP", target.Host)
	}
	src, err := packet.LocalIP(dst)
	if err != nil {
		return nil, err
	}

	result := &OsFingerprint{}

	if c.opts.EnableTCP {
		if f, err := c.collectTCP(src, dst, openPort, closedPort); err != nil {
			c.opts.Logger.WithError(err).WithField("target", target.Host).Debug("tcp fingerprint collection failed")
		} else {
			result.TCPFeatures = f
		}
	}
	if c.opts.EnableICMP {
		if f, err := c.collectICMP(src, dst, closedPort); err != nil {
			c.opts.Logger.WithError(err).WithField("target", target.Host).Debug("icmp fingerprint collection failed")
		} else {
			result.ICMPFeatures = f
		}
	}
	if c.opts.EnableUDP {
		if f, err := c.collectUDP(src, dst, closedPort); err != nil {
			c.opts.Logger.WithError(err).WithField("target", target.Host).Debug("udp fingerprint collection failed")
		} else {
			result.UDPFeatures = f
		}
	}
	if c.opts.EnableProtocol {
		result.ProtocolHints = c.collectProtocolHints(ctx, target.Host, protocolPorts)
	}
	if c.opts.EnableClockSkew {
		if f, err := c.collectClockSkew(src, dst, openPort); err != nil {
			c.opts.Logger.WithError(err).WithField("target", target.Host).Debug("clock skew collection failed")
		} else {
			result.ClockSkew = f
		}
	}
	if c.opts.EnableActiveProbes {
		result.ActiveProbes = c.collectActiveProbes(src, dst, openPort, closedPort)
	}

	result.CollectionTimeUs = time.Since(start).Microseconds()
	return result, nil
}
