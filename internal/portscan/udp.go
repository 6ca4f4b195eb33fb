package portscan

import (
	"context"
	"math/rand"
	"time"

	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/packet"
)

// udpProbePayload returns the service-specific probe for well-known
// ports that don't respond to an empty datagram, per §4.D ("DNS query
// for 53, NTP v3 packet for 123, SNMP get-request for 161, etc.").
// Ports with no entry get a single zero byte.
func udpProbePayload(port uint16) []byte {
	switch port {
	case 53:
		return dnsQueryProbe()
	case 123:
		return ntpV3Probe()
	case 161:
		return snmpGetRequestProbe()
	default:
		return []byte{0}
	}
}

// dnsQueryProbe builds a minimal "A? ." query — enough for most
// resolvers to produce a response distinguishing open from filtered.
func dnsQueryProbe() []byte {
	return []byte{
		0x12, 0x34, // transaction ID
		0x01, 0x00, // standard query, recursion desired
		0x00, 0x01, // qdcount
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // an/ns/ar counts
		0x00,       // root name
		0x00, 0x01, // qtype A
		0x00, 0x01, // qclass IN
	}
}

// ntpV3Probe builds a client-mode NTPv3 request.
func ntpV3Probe() []byte {
	buf := make([]byte, 48)
	buf[0] = 0x1b // LI=0, VN=3, Mode=3 (client)
	return buf
}

// snmpGetRequestProbe builds a bare SNMPv1 GetRequest for the public
// community string against sysDescr.0, enough to elicit a GetResponse
// or an ICMP unreachable from a closed agent.
func snmpGetRequestProbe() []byte {
	return []byte{
		0x30, 0x26, // SEQUENCE
		0x02, 0x01, 0x00, // version (v1)
		0x04, 0x06, 'p', 'u', 'b', 'l', 'i', 'c', // community
		0xa0, 0x19, // GetRequest PDU
		0x02, 0x01, 0x01, // request-id
		0x02, 0x01, 0x00, // error-status
		0x02, 0x01, 0x00, // error-index
		0x30, 0x0e, // varbind list
		0x30, 0x0c,
		0x06, 0x08, 0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x01, 0x00, // sysDescr.0
		0x05, 0x00, // NULL
	}
}

// ScanUDP sends a (possibly service-specific) datagram and classifies
// the outcome: a reply on the probed port is Open, an ICMP port
// unreachable is Closed, an ICMP unreachable with one of the
// packet.FilteredUnreachableCodes is Filtered (other unreachable codes
// are ignored), and silence after retries is OpenFiltered — UDP's inherent ambiguity
// between "open and ignoring us" and "filtered." udpRaw/icmpRaw are
// the Scanner-wide shared raw sockets for this scan (§5): every
// concurrent ScanUDP call writes through the same serialized socket
// and reads from the same demultiplexed reader rather than opening
// its own.
func (s *Scanner) ScanUDP(ctx context.Context, target models.Target, port uint16, udpRaw, icmpRaw *rawDemux) models.PortResult {
	result := models.PortResult{Target: target, Port: port, Protocol: models.ProtoUDP, Timestamp: time.Now()}
	dst := target.IP()
	if dst == nil {
		result.Status = models.StatusUnknown
		return result
	}

	src, err := packet.LocalIP(dst)
	if err != nil {
		result.Status = models.StatusUnknown
		return result
	}

	payload := udpProbePayload(port)
	srcPort := uint16(1024 + rand.Intn(64511))

	var lastErr error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt-1, s.opts.RetryDelay)):
			case <-ctx.Done():
				result.Status = models.StatusOpenFiltered
				return result
			}
		}
		if s.tc != nil {
			if err := s.tc.Acquire(ctx); err != nil {
				result.Status = models.StatusOpenFiltered
				return result
			}
		}

		dgram, err := packet.BuildUDP(src, dst, srcPort, port, payload)
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		if err := udpRaw.send(dst, dgram); err != nil {
			lastErr = err
			s.reportOutcome(false)
			continue
		}

		status, rtt := s.awaitUDPReply(udpRaw, icmpRaw, srcPort, port)
		if status != "" {
			result.Status = status
			result.RTT = time.Since(start) + rtt
			if status == models.StatusOpen {
				result.Provenance = models.ProvenanceServiceReply
			}
			s.reportOutcome(true)
			return result
		}
	}

	if lastErr != nil {
		s.opts.Logger.WithError(lastErr).WithField("target", target.Host).Debug("udp scan exhausted retries")
	}
	result.Status = models.StatusOpenFiltered
	return result
}

// awaitUDPReply subscribes to the shared UDP and ICMP demuxes until it
// sees evidence for this probe, or the scanner's configured timeout
// elapses.
func (s *Scanner) awaitUDPReply(udpRaw, icmpRaw *rawDemux, srcPort, dstPort uint16) (models.PortStatus, time.Duration) {
	udpID, udpCh := udpRaw.subscribe()
	defer udpRaw.unsubscribe(udpID)
	icmpID, icmpCh := icmpRaw.subscribe()
	defer icmpRaw.unsubscribe(icmpID)

	deadline := time.NewTimer(s.opts.Timeout)
	defer deadline.Stop()
	start := time.Now()

	for {
		select {
		case raw := <-udpCh:
			pkt, err := packet.ParseIPv4(raw)
			if err != nil {
				continue
			}
			dgram, ok := pkt.Payload.(*packet.UDPDatagram)
			if !ok || dgram.SrcPort != dstPort || dgram.DstPort != srcPort {
				continue
			}
			return models.StatusOpen, time.Since(start)
		case raw := <-icmpCh:
			pkt, err := packet.ParseIPv4(raw)
			if err != nil {
				continue
			}
			icmpPkt, ok := pkt.Payload.(*packet.ICMPPacket)
			if !ok || icmpPkt.Type != 3 {
				continue
			}
			if packet.IsPortUnreachable(icmpPkt) {
				return models.StatusClosed, time.Since(start)
			}
			if packet.FilteredUnreachableCodes[icmpPkt.Code] {
				return models.StatusFiltered, time.Since(start)
			}
		case <-deadline.C:
			return "", 0
		}
	}
}

// ScanUDPPorts scans every port against target concurrently, sharing
// one UDP and one ICMP raw socket across every port (and every other
// host this Scanner probes).
func (s *Scanner) ScanUDPPorts(ctx context.Context, target models.Target, ports []uint16) []models.PortResult {
	udpRaw, err := s.sharedUDPRaw()
	if err != nil {
		s.opts.Logger.WithError(err).Debug("udp raw socket unavailable")
		return s.failAllUnknown(target, ports)
	}
	icmpRaw, err := s.sharedICMPRaw()
	if err != nil {
		s.opts.Logger.WithError(err).Debug("icmp raw socket unavailable")
		return s.failAllUnknown(target, ports)
	}
	return s.scanPortsWith(ctx, target, ports, func(ctx context.Context, target models.Target, port uint16) models.PortResult {
		return s.ScanUDP(ctx, target, port, udpRaw, icmpRaw)
	})
}

// failAllUnknown reports every port Unknown when UDP scanning can't
// even open its raw sockets (no TCP connect fallback exists for UDP,
// unlike SYN scanning), matching the per-port Unknown status ScanUDP
// itself returns when the target has no IP or LocalIP fails.
func (s *Scanner) failAllUnknown(target models.Target, ports []uint16) []models.PortResult {
	results := make([]models.PortResult, len(ports))
	for i, port := range ports {
		results[i] = models.PortResult{
			Target: target, Port: port, Protocol: models.ProtoUDP,
			Status: models.StatusUnknown, Timestamp: time.Now(),
		}
	}
	return results
}
