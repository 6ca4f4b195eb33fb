// Package portscan implements the Port Scanner (§4.D): three
// techniques — TCP Connect, TCP SYN and UDP — sharing one output
// contract (models.PortResult) and the shared Throttle Controller for
// every packet sent.
package portscan

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netrecon/netrecon/internal/packet"
	"github.com/netrecon/netrecon/internal/throttle"
)

// Technique selects which of §4.D's three probing methods to use.
type Technique string

const (
	TechniqueConnect Technique = "tcp_connect"
	TechniqueSYN     Technique = "tcp_syn"
	TechniqueUDP     Technique = "udp"
)

// Options configures a Scanner. Zero values take the §6 defaults.
type Options struct {
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
	MaxBannerSize int
	Concurrency   int
	Logger        logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 2
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 100 * time.Millisecond
	}
	if o.MaxBannerSize <= 0 {
		o.MaxBannerSize = 1024
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 500
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Scanner probes ports using whichever Technique the caller selects.
// A single instance is reused across hosts; tc is shared with every
// other component that emits packets in this scan. Raw sockets for SYN
// and UDP scanning are opened lazily, at most once per protocol, and
// shared by every ScanSYN/ScanUDP probe this Scanner ever issues (§5:
// "Raw sockets: shared by protocol").
type Scanner struct {
	opts Options
	tc   *throttle.Controller

	rawMu   sync.Mutex
	tcpRaw  *rawDemux
	icmpRaw *rawDemux
	udpRaw  *rawDemux
}

// New builds a Scanner bound to the shared Throttle Controller. tc may
// be nil for tests, which disables rate limiting.
func New(opts Options, tc *throttle.Controller) *Scanner {
	opts.applyDefaults()
	return &Scanner{opts: opts, tc: tc}
}

// Close releases any raw sockets this Scanner opened for SYN/UDP
// scanning. Safe to call even if no raw-socket technique was ever
// used.
func (s *Scanner) Close() error {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	for _, d := range []*rawDemux{s.tcpRaw, s.icmpRaw, s.udpRaw} {
		if d != nil {
			d.close()
		}
	}
	s.tcpRaw, s.icmpRaw, s.udpRaw = nil, nil, nil
	return nil
}

// sharedRaw lazily opens, at most once, the demux backing *slot and
// returns it. Every caller across every host this Scanner probes gets
// the same shared, mutex-serialized socket for that protocol.
func (s *Scanner) sharedRaw(protocol packet.RawProtocol, slot **rawDemux) (*rawDemux, error) {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	if *slot != nil {
		return *slot, nil
	}
	sock, err := packet.OpenRaw(protocol)
	if err != nil {
		return nil, err
	}
	*slot = newRawDemux(sock)
	return *slot, nil
}

func (s *Scanner) sharedTCPRaw() (*rawDemux, error)  { return s.sharedRaw(packet.RawProtoTCP, &s.tcpRaw) }
func (s *Scanner) sharedICMPRaw() (*rawDemux, error) { return s.sharedRaw(packet.RawProtoICMP, &s.icmpRaw) }
func (s *Scanner) sharedUDPRaw() (*rawDemux, error)  { return s.sharedRaw(packet.RawProtoUDP, &s.udpRaw) }

func backoff(attempt int, base time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > 2*time.Second {
			return 2 * time.Second
		}
	}
	return d
}

// ParsePortRange parses a specification like "80,443,8000-8080" into a
// sorted, deduplicated list of ports.
func ParsePortRange(input string) ([]uint16, error) {
	if input == "" {
		return nil, fmt.Errorf("empty port specification")
	}
	ports := make(map[int]bool)
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid port range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start port in range %s: %w", part, err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end port in range %s: %w", part, err)
			}
			if start > end {
				return nil, fmt.Errorf("invalid port range: start (%d) > end (%d)", start, end)
			}
			if start < 1 || end > 65535 {
				return nil, fmt.Errorf("port range must be between 1 and 65535")
			}
			for p := start; p <= end; p++ {
				ports[p] = true
			}
		} else {
			port, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid port number: %s", part)
			}
			if port < 1 || port > 65535 {
				return nil, fmt.Errorf("port must be between 1 and 65535: %d", port)
			}
			ports[port] = true
		}
	}
	result := make([]uint16, 0, len(ports))
	for p := range ports {
		result = append(result, uint16(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// ParseCIDR expands a CIDR block (or passes through a single literal
// host) into its constituent addresses, skipping the network and
// broadcast addresses of a subnet.
func ParseCIDR(cidr string) ([]string, error) {
	if !strings.Contains(cidr, "/") {
		return []string{cidr}, nil
	}
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR notation: %w", err)
	}
	var hosts []string
	for ip := cloneIP(ipNet.IP.Mask(ipNet.Mask)); ipNet.Contains(ip); incIP(ip) {
		if !isNetworkOrBroadcast(ip, ipNet) {
			hosts = append(hosts, ip.String())
		}
	}
	return hosts, nil
}

func cloneIP(ip net.IP) net.IP {
	cp := make(net.IP, len(ip))
	copy(cp, ip)
	return cp
}

func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

func isNetworkOrBroadcast(ip net.IP, ipNet *net.IPNet) bool {
	if ip.Equal(ipNet.IP) {
		return true
	}
	broadcast := make(net.IP, len(ip))
	for i := range ip {
		broadcast[i] = ipNet.IP[i] | ^ipNet.Mask[i]
	}
	return ip.Equal(broadcast)
}

// CommonPorts returns the shortlist of well-known service ports the
// --common flag selects, distinct from the named PortSpec presets in
// ResolvePreset below.
func CommonPorts() []uint16 {
	return []uint16{21, 22, 23, 25, 53, 80, 110, 143, 443, 445, 3306, 3389, 5432, 6379, 8080, 8443}
}

// webPorts is the "web" PortSpec preset (§3): ports commonly fronting
// HTTP(S) services, including the dev-server ports nmap's own service
// probes treat as web-likely.
var webPorts = []uint16{80, 443, 3000, 5000, 8000, 8008, 8080, 8081, 8443, 8888, 9000, 9090}

// top100Ports is the "top100" PortSpec preset (§3): a curated,
// frequency-ranked set of the 100 TCP ports most commonly found open,
// in the spirit of nmap's --top-ports list.
var top100Ports = []uint16{
	7, 9, 13, 21, 22, 23, 25, 26, 37, 53,
	79, 80, 81, 88, 106, 110, 111, 113, 119, 135,
	139, 143, 144, 179, 199, 389, 427, 443, 444, 445,
	465, 513, 514, 515, 543, 544, 548, 554, 587, 631,
	646, 873, 990, 993, 995, 1025, 1026, 1027, 1028, 1029,
	1110, 1433, 1720, 1723, 1755, 1900, 2000, 2001, 2049, 2121,
	2717, 3000, 3128, 3306, 3389, 3986, 4899, 5000, 5009, 5051,
	5060, 5101, 5190, 5357, 5432, 5631, 5666, 5800, 5900, 6000,
	6001, 6646, 7070, 8000, 8008, 8009, 8080, 8081, 8443, 8888,
	9100, 9999, 10000, 32768, 49152, 49153, 49154, 49155, 49156, 49157,
}

// allPorts is the "all" PortSpec preset: every valid TCP port, 1..=65535.
func allPorts() []uint16 {
	ports := make([]uint16, 65535)
	for i := range ports {
		ports[i] = uint16(i + 1)
	}
	return ports
}

// ResolvePreset resolves one of the named PortSpec presets from §3
// ("top100", "web", "all" = 1..=65535) into its concrete port list. The
// second return reports whether name was a recognized preset at all;
// callers fall back to ParsePortRange when it isn't.
func ResolvePreset(name string) ([]uint16, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "all":
		return allPorts(), true
	case "web":
		return append([]uint16(nil), webPorts...), true
	case "top100":
		return append([]uint16(nil), top100Ports...), true
	default:
		return nil, false
	}
}

// ParsePortSpec resolves a PortSpec input string (§3): either a named
// preset ("top100", "web", "all") or a range string like
// "22,80,443"/"1-1024", tried in that order.
func ParsePortSpec(input string) ([]uint16, error) {
	if ports, ok := ResolvePreset(input); ok {
		return ports, nil
	}
	return ParsePortRange(input)
}
