package fingerprint

import (
	"errors"
	"math/rand"
	"net"

	"github.com/netrecon/netrecon/internal/packet"
)

// collectICMP gathers the ICMP sub-vector: echo-reply TTL, whether the
// payload is echoed back in full, the unreachable code a closed UDP
// port yields, whether a timestamp request is answered, and how the
// stack behaves under a short burst of identical echoes.
func (c *Collector) collectICMP(src, dst net.IP, closedUDPPort uint16) (*ICMPFeatures, error) {
	icmpSock, err := packet.OpenRaw(packet.RawProtoICMP)
	if err != nil {
		return nil, err
	}
	defer icmpSock.Close()

	f := &ICMPFeatures{}
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	id := uint16(rand.Intn(65536))
	echoed, ttl, err := c.icmpEcho(icmpSock, src, dst, id, 1, payload)
	if err == nil {
		f.EchoTTL = ttl
		f.EchoesFullPayload = echoed
	}

	if code, err := c.udpUnreachableCode(icmpSock, src, dst, closedUDPPort); err == nil {
		f.UnreachableCode = code
	}

	f.AnswersTimestampReq = c.icmpTimestamp(icmpSock, src, dst, id)
	f.BurstPattern = c.icmpBurst(icmpSock, src, dst, id, payload)

	return f, nil
}

func (c *Collector) icmpEcho(sock packet.RawSocket, src, dst net.IP, id, seq uint16, payload []byte) (echoedFull bool, ttl uint8, err error) {
	echoMsg, err := packet.BuildICMPEcho(src, dst, id, seq, payload)
	if err != nil {
		return false, 0, err
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoICMP), 64, rand.Intn(65536), false, echoMsg)
	if err != nil {
		return false, 0, err
	}
	if err := sock.Send(dst, ipPkt); err != nil {
		return false, 0, err
	}

	buf := make([]byte, 1500)
	n, _, err := sock.Recv(buf, c.opts.ProbeTimeout)
	if errors.Is(err, packet.ErrTimeout) {
		return false, 0, err
	}
	if err != nil {
		return false, 0, err
	}
	pkt, err := packet.ParseIPv4(buf[:n])
	if err != nil {
		return false, 0, err
	}
	reply, ok := pkt.Payload.(*packet.ICMPPacket)
	if !ok || reply.Type != 0 || reply.ID != id {
		return false, 0, errors.New("not a matching echo reply")
	}
	return len(reply.Payload) == len(payload), uint8(pkt.Header.TTL), nil
}

// udpUnreachableCode sends a UDP datagram to a port assumed closed and
// returns the ICMP code the stack replies with (normally 3, port
// unreachable, but some middleboxes/firewalls answer with 1, 9, 10 or
// 13 instead).
func (c *Collector) udpUnreachableCode(icmpSock packet.RawSocket, src, dst net.IP, port uint16) (uint8, error) {
	udpSock, err := packet.OpenRaw(packet.RawProtoUDP)
	if err != nil {
		return 0, err
	}
	defer udpSock.Close()

	srcPort := uint16(1024 + rand.Intn(64511))
	seg, err := packet.BuildUDP(src, dst, srcPort, port, []byte("probe"))
	if err != nil {
		return 0, err
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoUDP), 64, rand.Intn(65536), false, seg)
	if err != nil {
		return 0, err
	}
	if err := udpSock.Send(dst, ipPkt); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	n, _, err := icmpSock.Recv(buf, c.opts.ProbeTimeout)
	if err != nil {
		return 0, err
	}
	pkt, err := packet.ParseIPv4(buf[:n])
	if err != nil {
		return 0, err
	}
	reply, ok := pkt.Payload.(*packet.ICMPPacket)
	if !ok || reply.Type != 3 {
		return 0, errors.New("no unreachable reply observed")
	}
	return reply.Code, nil
}

// icmpTimestamp sends an ICMP type-13 timestamp request and reports
// whether the target answers with a type-14 timestamp reply; modern
// Linux/BSD stacks usually drop these silently while some legacy and
// embedded stacks still answer.
func (c *Collector) icmpTimestamp(sock packet.RawSocket, src, dst net.IP, id uint16) bool {
	h := make([]byte, 20)
	h[0] = 13 // timestamp request
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoICMP), 64, rand.Intn(65536), false, h)
	if err != nil {
		return false
	}
	if err := sock.Send(dst, ipPkt); err != nil {
		return false
	}

	buf := make([]byte, 1500)
	n, _, err := sock.Recv(buf, c.opts.ProbeTimeout)
	if err != nil {
		return false
	}
	pkt, err := packet.ParseIPv4(buf[:n])
	if err != nil {
		return false
	}
	reply, ok := pkt.Payload.(*packet.ICMPPacket)
	return ok && reply.Type == 14
}

// icmpBurst fires a short burst of echoes in quick succession and
// classifies the reply pattern observed.
func (c *Collector) icmpBurst(sock packet.RawSocket, src, dst net.IP, id uint16, payload []byte) BurstPattern {
	const burst = 5
	responses := 0

	for i := 0; i < burst; i++ {
		if _, _, err := c.icmpEcho(sock, src, dst, id, uint16(100+i), payload); err == nil {
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
