package discovery

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/netrecon/netrecon/internal/packet"
)

// icmpProber sends an echo request and reports liveness from the reply
// (§4.C method 2). The raw-socket prober accepts an echo reply, a
// destination-unreachable or a time-exceeded message; the unprivileged
// prober accepts only an echo reply.
type icmpProber interface {
	Probe(ctx context.Context, ip net.IP, timeout time.Duration) (bool, time.Duration, error)
}

// rawICMPProber uses the Packet Engine's raw socket; it needs
// CAP_NET_RAW / administrator and is the preferred path when available.
type rawICMPProber struct{}

func (rawICMPProber) Probe(ctx context.Context, dst net.IP, timeout time.Duration) (bool, time.Duration, error) {
	sock, err := packet.OpenRaw(packet.RawProtoICMP)
	if err != nil {
		return false, 0, err
	}
	defer sock.Close()

	src, err := packet.LocalIP(dst)
	if err != nil {
		return false, 0, err
	}

	id := uint16(os.Getpid() & 0xffff)
	raw, err := packet.BuildICMPEcho(src, dst, id, 1, []byte("netrecon-discovery"))
	if err != nil {
		return false, 0, err
	}

	start := time.Now()
	if err := sock.Send(dst, raw); err != nil {
		return false, 0, err
	}

	buf := make([]byte, 1500)
	for {
		remaining := time.Until(start.Add(timeout))
		if remaining <= 0 {
			return false, 0, nil
		}
		n, _, err := sock.Recv(buf, remaining)
		if errors.Is(err, packet.ErrTimeout) {
			return false, 0, nil
		}
		if err != nil {
			return false, 0, err
		}
		pkt, err := packet.ParseIPv4(buf[:n])
		if err != nil {
			continue
		}
		icmpPkt, ok := pkt.Payload.(*packet.ICMPPacket)
		if !ok {
			continue
		}
		// Echo reply, destination unreachable or time exceeded all prove reachability.
		if icmpPkt.Type == 0 || icmpPkt.Type == 3 || icmpPkt.Type == 11 {
			return true, time.Since(start), nil
		}
	}
}

// unprivilegedICMPProber falls back to golang.org/x/net/icmp's "ping
// socket" support (Linux net.ipv4.ping_group_range), following the same
// API the teacher's internal/ping package uses.
type unprivilegedICMPProber struct{}

func (unprivilegedICMPProber) Probe(ctx context.Context, dst net.IP, timeout time.Duration) (bool, time.Duration, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return false, 0, err
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: 1, Data: []byte("netrecon-discovery")},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return false, 0, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, &net.UDPAddr{IP: dst}); err != nil {
		return false, 0, err
	}
	if err := conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return false, 0, err
	}

	reply := make([]byte, 1500)
	n, _, err := conn.ReadFrom(reply)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, 0, nil
		}
		return false, 0, err
	}
	parsed, err := icmp.ParseMessage(1, reply[:n])
	if err != nil {
		return false, 0, nil
	}
	if parsed.Type == ipv4.ICMPTypeEchoReply {
		return true, time.Since(start), nil
	}
	return false, 0, nil
}

// tcpProber performs a full TCP connect to each candidate port; a
// completed handshake or an explicit refusal (RST) both prove the host
// is up (§4.C method 3). This reuses net.DialTimeout rather than a raw
// SYN, matching the TCP Connect technique already grounded in
// JedizLaPulga-NNS/internal/portscan.go — a half-open SYN-only probe is
// reserved for the Port Scanner's dedicated SYN technique (§4.D).
type tcpProber interface {
	Probe(ctx context.Context, dst net.IP, ports []uint16, timeout time.Duration) (bool, time.Duration, error)
}

type connectTCPProber struct{}

func (connectTCPProber) Probe(ctx context.Context, dst net.IP, ports []uint16, timeout time.Duration) (bool, time.Duration, error) {
	start := time.Now()
	for _, port := range ports {
		addr := net.JoinHostPort(dst.String(), strconv.Itoa(int(port)))
		conn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return true, time.Since(start), nil
		}
		if isConnRefused(err) {
			return true, time.Since(start), nil
		}
	}
	return false, 0, nil
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// udpProber sends a datagram to a port expected to be closed and treats
// an ICMP port-unreachable reply as liveness evidence (§4.C method 4).
// It needs the raw ICMP socket to observe the unreachable message, so it
// reports PermissionDenied (and contributes no evidence) when raw
// sockets are unavailable.
type udpProber interface {
	Probe(ctx context.Context, dst net.IP, port uint16, timeout time.Duration) (bool, time.Duration, error)
}

type icmpUnreachableUDPProber struct{}

func (icmpUnreachableUDPProber) Probe(ctx context.Context, dst net.IP, port uint16, timeout time.Duration) (bool, time.Duration, error) {
	icmpSock, err := packet.OpenRaw(packet.RawProtoICMP)
	if err != nil {
		return false, 0, err
	}
	defer icmpSock.Close()

	src, err := packet.LocalIP(dst)
	if err != nil {
		return false, 0, err
	}

	payload, err := packet.BuildUDP(src, dst, 40000, port, []byte{0})
	if err != nil {
		return false, 0, err
	}
	udpSock, err := packet.OpenRaw(packet.RawProtoUDP)
	if err != nil {
		return false, 0, err
	}
	defer udpSock.Close()

	start := time.Now()
	if err := udpSock.Send(dst, payload); err != nil {
		return false, 0, err
	}

	buf := make([]byte, 1500)
	for {
		remaining := time.Until(start.Add(timeout))
		if remaining <= 0 {
			return false, 0, nil
		}
		n, _, err := icmpSock.Recv(buf, remaining)
		if errors.Is(err, packet.ErrTimeout) {
			return false, 0, nil
		}
		if err != nil {
			return false, 0, err
		}
		pkt, err := packet.ParseIPv4(buf[:n])
		if err != nil {
			continue
		}
		icmpPkt, ok := pkt.Payload.(*packet.ICMPPacket)
		if ok && packet.IsPortUnreachable(icmpPkt) {
			return true, time.Since(start), nil
		}
	}
}
