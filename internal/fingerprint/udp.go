package fingerprint

import (
	"errors"
	"math/rand"
	"net"

	"github.com/netrecon/netrecon/internal/packet"
)

// collectUDP gathers the UDP sub-vector from a probe against a port
// assumed closed: whether the stack answers with port-unreachable, how
// many bytes of the original datagram it echoes back in the ICMP
// payload, and how it behaves across a short burst.
func (c *Collector) collectUDP(src, dst net.IP, closedPort uint16) (*UDPFeatures, error) {
	udpSock, err := packet.OpenRaw(packet.RawProtoUDP)
	if err != nil {
		return nil, err
	}
	defer udpSock.Close()

	icmpSock, err := packet.OpenRaw(packet.RawProtoICMP)
	if err != nil {
		return nil, err
	}
	defer icmpSock.Close()

	f := &UDPFeatures{}
	payload := []byte("fingerprint-udp-probe")

	unreachable, echoed, err := c.udpProbe(udpSock, icmpSock, src, dst, closedPort, payload)
	if err == nil {
		f.PortUnreachable = unreachable
		f.EchoedBytes = echoed
	}
	f.BurstPattern = c.udpBurst(udpSock, icmpSock, src, dst, closedPort, payload)

	return f, nil
}

func (c *Collector) udpProbe(udpSock, icmpSock packet.RawSocket, src, dst net.IP, port uint16, payload []byte) (unreachable bool, echoedBytes int, err error) {
	srcPort := uint16(1024 + rand.Intn(64511))
	seg, err := packet.BuildUDP(src, dst, srcPort, port, payload)
	if err != nil {
		return false, 0, err
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoUDP), 64, rand.Intn(65536), false, seg)
	if err != nil {
		return false, 0, err
	}
	if err := udpSock.Send(dst, ipPkt); err != nil {
		return false, 0, err
	}

	buf := make([]byte, 1500)
	n, _, err := icmpSock.Recv(buf, c.opts.ProbeTimeout)
	if errors.Is(err, packet.ErrTimeout) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	pkt, err := packet.ParseIPv4(buf[:n])
	if err != nil {
		return false, 0, err
	}
	reply, ok := pkt.Payload.(*packet.ICMPPacket)
	if !ok {
		return false, 0, nil
	}
	return packet.IsPortUnreachable(reply), len(reply.Payload), nil
}

func (c *Collector) udpBurst(udpSock, icmpSock packet.RawSocket, src, dst net.IP, port uint16, payload []byte) BurstPattern {
	const burst = 5
	responses := 0
	for i := 0; i < burst; i++ {
		unreachable, _, err := c.udpProbe(udpSock, icmpSock, src, dst, port, payload)
		if err == nil && unreachable {
			responses++
		}
	}
	switch {
	case responses == burst:
		return BurstAlwaysRespond
	case responses == 0:
		return BurstSilentDrop
	case responses < burst && responses > burst/2:
		return BurstRateLimited
	default:
		return BurstSelective
	}
}
