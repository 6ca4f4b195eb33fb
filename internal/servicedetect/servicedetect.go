package servicedetect

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/netrecon/netrecon/internal/models"
)

// serverSpeaksFirst is the well-known port set that greets a connecting
// client without needing a probe (§4.E step 2).
var serverSpeaksFirst = map[uint16]bool{
	21: true, 22: true, 25: true, 110: true, 143: true, 220: true,
}

// Options configures a Detector.
type Options struct {
	BannerTimeout      time.Duration
	MaxBannerSize      int
	ConfidenceThreshold float64
}

func (o *Options) applyDefaults() {
	if o.BannerTimeout <= 0 {
		o.BannerTimeout = 5 * time.Second
	}
	if o.MaxBannerSize <= 0 {
		o.MaxBannerSize = 1024
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.5
	}
}

// Detector identifies the service behind a confirmed-open port.
type Detector struct {
	opts       Options
	signatures []ServiceSignature
}

// New builds a Detector over the given signature table. Pass
// DefaultSignatures() for the built-in set.
func New(opts Options, signatures []ServiceSignature) *Detector {
	opts.applyDefaults()
	return &Detector{opts: opts, signatures: signatures}
}

// Detect connects to (host, port), collects a banner per §4.E's
// server-speaks-first / probe-then-read rules, and scores it against
// every signature.
func (d *Detector) Detect(ctx context.Context, target models.Target, port uint16) models.ServiceMatch {
	addr := net.JoinHostPort(target.Host, strconv.Itoa(int(port)))
	conn, err := (&net.Dialer{Timeout: d.opts.BannerTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return models.ServiceMatch{Name: "Unknown"}
	}
	defer conn.Close()

	banner := d.collectBanner(conn, port)
	return d.DetectFromBanner(port, banner)
}

func (d *Detector) collectBanner(conn net.Conn, port uint16) *models.Banner {
	_ = conn.SetDeadline(time.Now().Add(d.opts.BannerTimeout))

	if !serverSpeaksFirst[port] {
		probe := probeFor(port)
		if probe != nil {
			_, _ = conn.Write(probe)
		}
	}

	buf := make([]byte, d.opts.MaxBannerSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return nil
	}
	return &models.Banner{Bytes: append([]byte(nil), buf[:n]...), Encoding: "utf8", CollectedAt: time.Now()}
}

// probeFor returns the protocol-specific probe bytes for ports that
// don't greet a connecting client unprompted.
func probeFor(port uint16) []byte {
	switch port {
	case 80, 8080:
		return []byte("GET / HTTP/1.0\r\n\r\n")
	case 443, 8443:
		return tlsClientHello()
	case 6379:
		return []byte("INFO\r\n")
	case 11211:
		return []byte("version\r\n")
	case 3306:
		return nil // MySQL's server greets first once the TCP connection is up
	default:
		return []byte("\r\n")
	}
}

// tlsClientHello returns a minimal TLS 1.2 ClientHello, enough to
// provoke a ServerHello (or alert) carrying identifying details.
func tlsClientHello() []byte {
	hello := []byte{
		0x16, 0x03, 0x01, 0x00, 0x35, // record header, 53-byte body
		0x01, 0x00, 0x00, 0x31, // handshake header (ClientHello), 49-byte body
		0x03, 0x03, // client version TLS 1.2
	}
	hello = append(hello, make([]byte, 32)...) // client random
	hello = append(hello,
		0x00,       // empty session ID
		0x00, 0x0a, // five cipher suites
		0xc0, 0x2f, 0xc0, 0x2b, 0x00, 0x9c, 0x00, 0x2f, 0x00, 0x35,
		0x01, 0x00, // null compression only
	)
	return hello
}

// DetectFromBanner scores a previously-collected banner without
// performing any I/O, letting the Port Scanner's TCP Connect result
// (which may have already read a banner) feed directly into detection.
func (d *Detector) DetectFromBanner(port uint16, banner *models.Banner) models.ServiceMatch {
	if banner == nil {
		return models.ServiceMatch{Name: "Unknown"}
	}

	text := banner.String()
	var best models.ServiceMatch
	bestScore := -1.0
	bestPreferred := false

	for i := range d.signatures {
		sig := &d.signatures[i]
		strength, version := sig.matchStrength(text)
		if strength == 0 {
			continue
		}
		score := strength * sig.ConfidenceWeight
		preferred := sig.PreferredPorts[port]

		if score > bestScore || (score == bestScore && preferred && !bestPreferred) {
			best = models.ServiceMatch{Name: sig.Name, Version: version, Confidence: score, Banner: banner}
			bestScore = score
			bestPreferred = preferred
		}
	}

	if bestScore < d.opts.ConfidenceThreshold {
		return models.ServiceMatch{Name: "Unknown", Banner: banner}
	}
	return best
}
