package portscan

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/packet"
)

// ScanSYN sends a crafted SYN and classifies the reply per §4.D: a
// SYN-ACK means Open (and a RST is sent back to tear the half-open
// connection down); a bare RST means Closed; the documented ICMP
// unreachable codes mean Filtered. It needs CAP_NET_RAW /
// administrator; callers should fall back to ScanConnect on
// PermissionDenied. tcpRaw/icmpRaw are the Scanner-wide shared raw
// sockets for this scan (§5): every concurrent ScanSYN call writes
// through the same serialized socket and reads from the same
// demultiplexed reader rather than opening its own.
func (s *Scanner) ScanSYN(ctx context.Context, target models.Target, port uint16, tcpRaw, icmpRaw *rawDemux) models.PortResult {
	result := models.PortResult{Target: target, Port: port, Protocol: models.ProtoTCP, Timestamp: time.Now()}
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

		srcPort := uint16(1024 + rand.Intn(64511))
		seq := rand.Uint32()

		tcpSeg, err := packet.BuildTCP(src, dst, srcPort, port, seq, 0, packet.FlagSYN, 65535, nil, nil)
		if err != nil {
			lastErr = err
			continue
		}
		ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, rand.Intn(65536), true, tcpSeg)
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		if err := tcpRaw.send(dst, ipPkt); err != nil {
			lastErr = err
			s.reportOutcome(false)
			continue
		}

		status, provenance, rtt, err := s.awaitSYNReply(tcpRaw, icmpRaw, src, dst, srcPort, port, seq)
		if err != nil {
			lastErr = err
			s.reportOutcome(false)
			continue
		}
		if status != "" {
			result.Status = status
			result.Provenance = provenance
			result.RTT = time.Since(start) + rtt
			s.reportOutcome(status == models.StatusOpen || status == models.StatusClosed)
			return result
		}
	}

	s.opts.Logger.WithError(lastErr).WithField("target", target.Host).Debug("syn scan exhausted retries")
	result.Status = models.StatusFiltered
	return result
}

// awaitSYNReply subscribes to the shared TCP and ICMP demuxes until it
// sees evidence for (or against) this probe, or the scanner's
// configured timeout elapses.
func (s *Scanner) awaitSYNReply(tcpRaw, icmpRaw *rawDemux, src, dst net.IP, srcPort, dstPort uint16, seq uint32) (models.PortStatus, models.Provenance, time.Duration, error) {
	type outcome struct {
		status     models.PortStatus
		provenance models.Provenance
		rtt        time.Duration
	}

	tcpID, tcpCh := tcpRaw.subscribe()
	defer tcpRaw.unsubscribe(tcpID)
	icmpID, icmpCh := icmpRaw.subscribe()
	defer icmpRaw.unsubscribe(icmpID)

	deadline := time.NewTimer(s.opts.Timeout)
	defer deadline.Stop()
	start := time.Now()

	for {
		select {
		case raw := <-tcpCh:
			pkt, err := packet.ParseIPv4(raw)
			if err != nil {
				continue
			}
			seg, ok := pkt.Payload.(*packet.TCPSegment)
			if !ok || seg.SrcPort != dstPort || seg.DstPort != srcPort {
				continue
			}
			switch {
			case seg.Flags&packet.FlagSYN != 0 && seg.Flags&packet.FlagACK != 0:
				sendRST(tcpRaw, src, dst, srcPort, dstPort, seq+1)
				return models.StatusOpen, models.ProvenanceSynAck, time.Since(start), nil
			case seg.Flags&packet.FlagRST != 0:
				return models.StatusClosed, "", time.Since(start), nil
			}
		case raw := <-icmpCh:
			pkt, err := packet.ParseIPv4(raw)
			if err != nil {
				continue
			}
			icmpPkt, ok := pkt.Payload.(*packet.ICMPPacket)
			if !ok || icmpPkt.Type != 3 || !packet.FilteredUnreachableCodes[icmpPkt.Code] {
				continue
			}
			return models.StatusFiltered, "", time.Since(start), nil
		case <-deadline.C:
			return "", "", 0, nil
		}
	}
}

func sendRST(tcpRaw *rawDemux, src, dst net.IP, srcPort, dstPort uint16, seq uint32) {
	seg, err := packet.BuildTCP(src, dst, srcPort, dstPort, seq, 0, packet.FlagRST, 0, nil, nil)
	if err != nil {
		return
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, rand.Intn(65536), true, seg)
	if err != nil {
		return
	}
	_ = tcpRaw.send(dst, ipPkt)
}

// ScanSYNPorts scans every port against target concurrently, sharing
// one TCP and one ICMP raw socket across every port (and every other
// host this Scanner probes), falling back to ScanConnect for the whole
// batch if raw sockets are unavailable.
func (s *Scanner) ScanSYNPorts(ctx context.Context, target models.Target, ports []uint16) []models.PortResult {
	tcpRaw, err := s.sharedTCPRaw()
	if err != nil {
		s.opts.Logger.WithError(err).Debug("raw sockets unavailable, falling back to tcp connect")
		return s.ScanConnectPorts(ctx, target, ports)
	}
	icmpRaw, err := s.sharedICMPRaw()
	if err != nil {
		s.opts.Logger.WithError(err).Debug("raw sockets unavailable, falling back to tcp connect")
		return s.ScanConnectPorts(ctx, target, ports)
	}
	return s.scanPortsWith(ctx, target, ports, func(ctx context.Context, target models.Target, port uint16) models.PortResult {
		return s.ScanSYN(ctx, target, port, tcpRaw, icmpRaw)
	})
}
