package fingerprint

import (
	"errors"
	"math/rand"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/netrecon/netrecon/internal/packet"
)

// collectTCP gathers the TCP sub-vector against a confirmed-open port:
// a SYN probe for the baseline TTL/window/MSS/option-order/DF, a burst
// of SYN probes for the IP-ID pattern, an ECN-flagged SYN, and three
// stimulus probes against a closed port (FIN, NULL, Xmas) to observe
// whether the stack answers an unexpected flag combination with a RST.
func (c *Collector) collectTCP(src, dst net.IP, openPort, closedPort uint16) (*TCPFeatures, error) {
	tcpSock, err := packet.OpenRaw(packet.RawProtoTCP)
	if err != nil {
		return nil, err
	}
	defer tcpSock.Close()

	f := &TCPFeatures{IPIDPattern: IPIDUnknown}

	base, ipids, err := c.synBaseline(tcpSock, src, dst, openPort)
	if err != nil {
		return nil, err
	}
	f.InitialTTL = base.ttl
	f.WindowSize = base.window
	f.MSS = base.mss
	f.OptionOrder = base.optionOrder
	f.DF = base.df
	f.SynAckRTT = base.rtt
	f.IPIDPattern = classifyIPIDPattern(ipids)

	f.ECNEchoed = c.ecnProbe(tcpSock, src, dst, openPort)
	f.RSTOnFIN = c.stimulusProbe(tcpSock, src, dst, closedPort, packet.FlagFIN)
	f.RSTOnNull = c.stimulusProbe(tcpSock, src, dst, closedPort, 0)
	f.RSTOnXmas = c.stimulusProbe(tcpSock, src, dst, closedPort, packet.FlagFIN|packet.FlagPSH|packet.FlagURG)

	return f, nil
}

type synReply struct {
	ttl         uint8
	window      uint16
	mss         uint16
	optionOrder []uint8
	df          bool
	rtt         time.Duration
	ipID        uint16
}

// synBaseline sends a burst of six SYNs, each from a fresh source port
// with a fresh sequence number, returning the first reply's full
// feature set plus the IP ID of every reply for pattern classification.
func (c *Collector) synBaseline(sock packet.RawSocket, src, dst net.IP, port uint16) (synReply, []uint16, error) {
	const burst = 6
	var first synReply
	var ipids []uint16
	haveFirst := false

	for i := 0; i < burst; i++ {
		if c.tc != nil {
			if err := c.tc.Acquire(c.ctx); err != nil {
				break
			}
		}
		srcPort := uint16(1024 + rand.Intn(64511))
		seq := rand.Uint32()
		reply, err := c.sendSYNAndAwait(sock, src, dst, srcPort, port, seq)
		if err != nil {
			continue
		}
		if reply == nil {
			continue
		}
		ipids = append(ipids, reply.ipID)
		if !haveFirst {
			first = *reply
			haveFirst = true
		}
	}
	if !haveFirst {
		return synReply{}, nil, errors.New("no SYN-ACK reply received within burst")
	}
	return first, ipids, nil
}

func (c *Collector) sendSYNAndAwait(sock packet.RawSocket, src, dst net.IP, srcPort, dstPort uint16, seq uint32) (*synReply, error) {
	opts := []packet.TCPOption{
		{Kind: packet.OptMSS, Data: []byte{0x05, 0xb4}}, // 1460
		{Kind: packet.OptSACKPermitted},
		{Kind: packet.OptWindowScale, Data: []byte{0x07}},
	}
	seg, err := packet.BuildTCP(src, dst, srcPort, dstPort, seq, 0, packet.FlagSYN, 65535, opts, nil)
	if err != nil {
		return nil, err
	}
	id := rand.Intn(65536)
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, id, true, seg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := sock.Send(dst, ipPkt); err != nil {
		return nil, err
	}

	deadline := c.opts.ProbeTimeout
	buf := make([]byte, 1500)
	for {
		n, _, err := sock.Recv(buf, deadline)
		if errors.Is(err, packet.ErrTimeout) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		pkt, err := packet.ParseIPv4(buf[:n])
		if err != nil {
			continue
		}
		seg, ok := pkt.Payload.(*packet.TCPSegment)
		if !ok || seg.SrcPort != dstPort || seg.DstPort != srcPort {
			continue
		}
		if seg.Flags&packet.FlagSYN == 0 || seg.Flags&packet.FlagACK == 0 {
			continue
		}
		sendRSTForFingerprint(sock, src, dst, srcPort, dstPort, seg.Ack)
		r := &synReply{
			ttl:    uint8(pkt.Header.TTL),
			window: seg.Window,
			df:     pkt.Header.Flags&ipv4.DontFragment != 0,
			rtt:    time.Since(start),
			ipID:   uint16(pkt.Header.ID),
		}
		for _, o := range seg.Options {
			r.optionOrder = append(r.optionOrder, o.Kind)
			if o.Kind == packet.OptMSS && len(o.Data) == 2 {
				r.mss = uint16(o.Data[0])<<8 | uint16(o.Data[1])
			}
		}
		return r, nil
	}
}

// ecnProbe sends a SYN with ECE+CWR set and reports whether the target
// echoes ECN support back in its SYN-ACK.
func (c *Collector) ecnProbe(sock packet.RawSocket, src, dst net.IP, port uint16) bool {
	srcPort := uint16(1024 + rand.Intn(64511))
	seq := rand.Uint32()
	seg, err := packet.BuildTCP(src, dst, srcPort, port, seq, 0, packet.FlagSYN|packet.FlagECE|packet.FlagCWR, 65535, nil, nil)
	if err != nil {
		return false
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, rand.Intn(65536), true, seg)
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
	reply, ok := pkt.Payload.(*packet.TCPSegment)
	if !ok || reply.SrcPort != port || reply.DstPort != srcPort {
		return false
	}
	if reply.Flags&packet.FlagSYN != 0 && reply.Flags&packet.FlagACK != 0 {
		sendRSTForFingerprint(sock, src, dst, srcPort, port, reply.Ack)
	}
	return reply.Flags&packet.FlagECE != 0
}

// stimulusProbe sends a single segment with the given flag combination
// to a closed port and reports whether a RST came back, matching the
// classic closed-port stimulus probes (T-series equivalents).
func (c *Collector) stimulusProbe(sock packet.RawSocket, src, dst net.IP, port uint16, flags uint16) bool {
	srcPort := uint16(1024 + rand.Intn(64511))
	seg, err := packet.BuildTCP(src, dst, srcPort, port, rand.Uint32(), 0, flags, 0, nil, nil)
	if err != nil {
		return false
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, rand.Intn(65536), true, seg)
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
	reply, ok := pkt.Payload.(*packet.TCPSegment)
	return ok && reply.SrcPort == port && reply.DstPort == srcPort && reply.Flags&packet.FlagRST != 0
}

func sendRSTForFingerprint(sock packet.RawSocket, src, dst net.IP, srcPort, dstPort uint16, ack uint32) {
	seg, err := packet.BuildTCP(src, dst, srcPort, dstPort, ack, 0, packet.FlagRST, 0, nil, nil)
	if err != nil {
		return
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, rand.Intn(65536), true, seg)
	if err != nil {
		return
	}
	_ = sock.Send(dst, ipPkt)
}

// classifyIPIDPattern looks at the sequence of IP-ID values observed
// across a probe burst and buckets the stack's allocation strategy.
func classifyIPIDPattern(ids []uint16) IPIDPattern {
	if len(ids) < 2 {
		return IPIDUnknown
	}
	allZero := true
	allSame := true
	for _, id := range ids {
		if id != 0 {
			allZero = false
		}
		if id != ids[0] {
			allSame = false
		}
	}
	if allZero {
		return IPIDZero
	}
	if allSame {
		return IPIDFixed
	}

	incremental := true
	for i := 1; i < len(ids); i++ {
		delta := int(ids[i]) - int(ids[i-1])
		if delta < 0 {
			delta += 65536
		}
		if delta == 0 || delta > 1000 {
			incremental = false
			break
		}
	}
	if incremental {
		return IPIDIncremental
	}
	return IPIDRandom
}
