package fingerprint

import (
	"math/rand"
	"net"

	"github.com/netrecon/netrecon/internal/packet"
)

// activeProbeSpec describes one probe in the T1-T7/U1/IE/SEQ/ECN
// battery: a fixed flag/option/TTL/window combination sent at a known
// port, modeled directly on the classic TCP/IP stack-fingerprinting
// probe set. Every probe targets the already-open or already-closed
// port the caller supplies; none of this is enabled by default (§4.F)
// since a 16-packet battery is far noisier on the wire than the
// passive/clock-skew/protocol-hint vectors.
type activeProbeSpec struct {
	name    string
	flags   uint16
	window  uint16
	useOpen bool
	options []packet.TCPOption
}

func activeProbeBattery() []activeProbeSpec {
	sackPermitted := []packet.TCPOption{{Kind: packet.OptSACKPermitted}}
	return []activeProbeSpec{
		{name: "T1", flags: packet.FlagSYN, window: 1, useOpen: true, options: sackPermitted},
		{name: "T2", flags: 0, window: 128, useOpen: true},
		{name: "T3", flags: packet.FlagSYN | packet.FlagFIN | packet.FlagURG | packet.FlagPSH, window: 256, useOpen: true},
		{name: "T4", flags: packet.FlagACK, window: 1024, useOpen: true},
		{name: "T5", flags: packet.FlagSYN, window: 31337, useOpen: false},
		{name: "T6", flags: packet.FlagACK, window: 32768, useOpen: false},
		{name: "T7", flags: packet.FlagFIN | packet.FlagPSH | packet.FlagURG, window: 65535, useOpen: false},
	}
}

// collectActiveProbes runs the T1-T7 TCP battery plus a single U1 UDP
// probe, an IE (ICMP echo) probe, a SEQ generation probe group and an
// ECN probe, recording each probe's raw response characteristics for
// the Signature DB's matcher rather than pre-classifying them here.
// The U1 probe only sends its datagram; no reply is read for it, so its
// result always has Responded false.
func (c *Collector) collectActiveProbes(src, dst net.IP, openPort, closedPort uint16) []ActiveProbeResult {
	var results []ActiveProbeResult

	tcpSock, err := packet.OpenRaw(packet.RawProtoTCP)
	if err == nil {
		defer tcpSock.Close()
		for _, spec := range activeProbeBattery() {
			port := closedPort
			if spec.useOpen {
				port = openPort
			}
			results = append(results, c.runTCPActiveProbe(tcpSock, src, dst, port, spec))
		}
		for i := 0; i < int(c.opts.SeqProbesCount); i++ {
			results = append(results, c.runTCPActiveProbe(tcpSock, src, dst, openPort, activeProbeSpec{
				name: "SEQ", flags: packet.FlagSYN, window: 65535,
			}))
		}
		results = append(results, c.runECNActiveProbe(tcpSock, src, dst, openPort))
	}

	if udpSock, err := packet.OpenRaw(packet.RawProtoUDP); err == nil {
		defer udpSock.Close()
		results = append(results, c.runU1Probe(udpSock, src, dst, closedPort))
	}

	if icmpSock, err := packet.OpenRaw(packet.RawProtoICMP); err == nil {
		defer icmpSock.Close()
		results = append(results, c.runIEProbe(icmpSock, src, dst))
	}

	return results
}

func (c *Collector) runTCPActiveProbe(sock packet.RawSocket, src, dst net.IP, port uint16, spec activeProbeSpec) ActiveProbeResult {
	srcPort := uint16(1024 + rand.Intn(64511))
	seg, err := packet.BuildTCP(src, dst, srcPort, port, rand.Uint32(), rand.Uint32(), spec.flags, spec.window, spec.options, nil)
	if err != nil {
		return ActiveProbeResult{Probe: spec.name}
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, rand.Intn(65536), true, seg)
	if err != nil {
		return ActiveProbeResult{Probe: spec.name}
	}
	if err := sock.Send(dst, ipPkt); err != nil {
		return ActiveProbeResult{Probe: spec.name}
	}

	buf := make([]byte, 1500)
	n, _, err := sock.Recv(buf, c.opts.ActiveProbeTimeout)
	if err != nil {
		return ActiveProbeResult{Probe: spec.name}
	}
	pkt, err := packet.ParseIPv4(buf[:n])
	if err != nil {
		return ActiveProbeResult{Probe: spec.name}
	}
	reply, ok := pkt.Payload.(*packet.TCPSegment)
	if !ok || reply.SrcPort != port || reply.DstPort != srcPort {
		return ActiveProbeResult{Probe: spec.name}
	}
	return ActiveProbeResult{
		Probe: spec.name, Responded: true, TTL: uint8(pkt.Header.TTL),
		WindowSize: reply.Window, Flags: reply.Flags,
	}
}

func (c *Collector) runECNActiveProbe(sock packet.RawSocket, src, dst net.IP, port uint16) ActiveProbeResult {
	return c.runTCPActiveProbe(sock, src, dst, port, activeProbeSpec{
		name: "ECN", flags: packet.FlagSYN | packet.FlagECE | packet.FlagCWR, window: 65535,
	})
}

func (c *Collector) runU1Probe(sock packet.RawSocket, src, dst net.IP, port uint16) ActiveProbeResult {
	srcPort := uint16(1024 + rand.Intn(64511))
	seg, err := packet.BuildUDP(src, dst, srcPort, port, make([]byte, 300))
	if err != nil {
		return ActiveProbeResult{Probe: "U1"}
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoUDP), 64, rand.Intn(65536), false, seg)
	if err != nil {
		return ActiveProbeResult{Probe: "U1"}
	}
	if err := sock.Send(dst, ipPkt); err != nil {
		return ActiveProbeResult{Probe: "U1"}
	}
	return ActiveProbeResult{Probe: "U1", Responded: false}
}

func (c *Collector) runIEProbe(sock packet.RawSocket, src, dst net.IP) ActiveProbeResult {
	id := uint16(rand.Intn(65536))
	msg, err := packet.BuildICMPEcho(src, dst, id, 9, make([]byte, 120))
	if err != nil {
		return ActiveProbeResult{Probe: "IE"}
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoICMP), 64, rand.Intn(65536), false, msg)
	if err != nil {
		return ActiveProbeResult{Probe: "IE"}
	}
	if err := sock.Send(dst, ipPkt); err != nil {
		return ActiveProbeResult{Probe: "IE"}
	}

	buf := make([]byte, 1500)
	n, _, err := sock.Recv(buf, c.opts.ActiveProbeTimeout)
	if err != nil {
		return ActiveProbeResult{Probe: "IE"}
	}
	pkt, err := packet.ParseIPv4(buf[:n])
	if err != nil {
		return ActiveProbeResult{Probe: "IE"}
	}
	reply, ok := pkt.Payload.(*packet.ICMPPacket)
	if !ok {
		return ActiveProbeResult{Probe: "IE"}
	}
	return ActiveProbeResult{
		Probe: "IE", Responded: true, TTL: uint8(pkt.Header.TTL),
		ICMPType: reply.Type, ICMPCode: reply.Code,
	}
}
