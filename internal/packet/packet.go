// Package packet is the strongly-typed packet engine: it builds and
// parses IPv4/IPv6, TCP, UDP and ICMP datagrams and computes their
// checksums so callers never hand-roll one. The checksum algorithm and
// TCP option encoding are ported from the raw packet builder in
// sun977-NeoScan's internal/core/lib/network/netraw/packet_builder.go;
// IPv4 header marshaling reuses golang.org/x/net/ipv4 the way the
// teacher repo's internal/ping already does.
package packet

import (
	"encoding/binary"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/netrecon/netrecon/internal/scanerrors"
)

// TCP flag bits (NS is bit 8, outside the single byte most callers pass).
const (
	FlagFIN uint16 = 0x01
	FlagSYN uint16 = 0x02
	FlagRST uint16 = 0x04
	FlagPSH uint16 = 0x08
	FlagACK uint16 = 0x10
	FlagURG uint16 = 0x20
	FlagECE uint16 = 0x40
	FlagCWR uint16 = 0x80
	FlagNS  uint16 = 0x100
)

// TCP option kinds understood by the builder/parser (§4.A).
const (
	OptEndOfList     uint8 = 0
	OptNOP           uint8 = 1
	OptMSS           uint8 = 2
	OptWindowScale   uint8 = 3
	OptSACKPermitted uint8 = 4
	OptSACK          uint8 = 5
	OptTimestamp     uint8 = 8
)

// TCPOption is one option in a TCP header's option list, preserved in
// input order since the order is semantically significant for OS
// fingerprinting. Unknown kinds pass through as opaque {Kind, Data}.
type TCPOption struct {
	Kind uint8
	Data []byte // raw option payload, excluding kind/length bytes
}

func (o TCPOption) encodedLen() int {
	if o.Kind == OptEndOfList || o.Kind == OptNOP {
		return 1
	}
	return 2 + len(o.Data)
}

// EncodeTCPOptions serializes options in order, padding with EndOfList to a
// 4-byte boundary, and fails with InvalidPacket if the result exceeds
// the 40-byte maximum TCP options region.
func EncodeTCPOptions(options []TCPOption) ([]byte, error) {
	total := 0
	for _, o := range options {
		total += o.encodedLen()
	}
	padded := (total + 3) / 4 * 4
	if padded > 40 {
		return nil, scanerrors.New(scanerrors.KindInvalidPacket, "tcp options encode to %d bytes, exceeds 40-byte maximum", padded)
	}

	buf := make([]byte, 0, padded)
	for _, o := range options {
		if o.Kind == OptEndOfList || o.Kind == OptNOP {
			buf = append(buf, o.Kind)
			continue
		}
		buf = append(buf, o.Kind, uint8(2+len(o.Data)))
		buf = append(buf, o.Data...)
	}
	for len(buf) < padded {
		buf = append(buf, OptEndOfList)
	}
	return buf, nil
}

// DecodeTCPOptions parses a TCP options byte slice back into ordered
// TCPOption values, stopping at EndOfList or an exhausted buffer.
func DecodeTCPOptions(data []byte) []TCPOption {
	var opts []TCPOption
	i := 0
	for i < len(data) {
		kind := data[i]
		if kind == OptEndOfList {
			break
		}
		if kind == OptNOP {
			opts = append(opts, TCPOption{Kind: kind})
			i++
			continue
		}
		if i+1 >= len(data) {
			break
		}
		length := int(data[i+1])
		if length < 2 || i+length > len(data) {
			break
		}
		opts = append(opts, TCPOption{Kind: kind, Data: append([]byte(nil), data[i+2:i+length]...)})
		i += length
	}
	return opts
}

// checksum computes the RFC 1071 16-bit one's complement checksum.
func checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	i := 0
	for n > 1 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
		i += 2
		n -= 2
	}
	if n > 0 {
		sum += uint32(data[i]) << 8
	}
	for sum>>16 > 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

func ipv4PseudoHeader(src, dst net.IP, protocol uint8, length int) []byte {
	ph := make([]byte, 12)
	copy(ph[0:4], src.To4())
	copy(ph[4:8], dst.To4())
	ph[9] = protocol
	binary.BigEndian.PutUint16(ph[10:], uint16(length))
	return ph
}

func ipv6PseudoHeader(src, dst net.IP, nextHeader uint8, length int) []byte {
	ph := make([]byte, 40)
	copy(ph[0:16], src.To16())
	copy(ph[16:32], dst.To16())
	binary.BigEndian.PutUint32(ph[32:], uint32(length))
	ph[39] = nextHeader
	return ph
}

func pseudoHeader(src, dst net.IP, protocol uint8, length int) ([]byte, error) {
	if src.To4() != nil && dst.To4() != nil {
		return ipv4PseudoHeader(src, dst, protocol, length), nil
	}
	if src.To16() != nil && dst.To16() != nil {
		return ipv6PseudoHeader(src, dst, protocol, length), nil
	}
	return nil, scanerrors.New(scanerrors.KindInvalidPacket, "src/dst address family mismatch")
}

const (
	protoICMP   = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

// BuildTCP constructs a TCP segment with an RFC-correct pseudo-header
// checksum over IPv4 or IPv6, in the order options were given.
func BuildTCP(srcIP, dstIP net.IP, srcPort, dstPort uint16, seq, ack uint32, flags uint16, window uint16, options []TCPOption, payload []byte) ([]byte, error) {
	optBytes, err := EncodeTCPOptions(options)
	if err != nil {
		return nil, err
	}
	headerLen := 20 + len(optBytes)
	if headerLen%4 != 0 {
		return nil, scanerrors.New(scanerrors.KindInvalidPacket, "tcp header length %d is not a multiple of 4", headerLen)
	}
	dataOffset := headerLen / 4

	h := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint16(h[0:], srcPort)
	binary.BigEndian.PutUint16(h[2:], dstPort)
	binary.BigEndian.PutUint32(h[4:], seq)
	binary.BigEndian.PutUint32(h[8:], ack)
	h[12] = byte(dataOffset<<4) | byte((flags>>8)&0x01)
	h[13] = byte(flags & 0xFF)
	binary.BigEndian.PutUint16(h[14:], window)
	// h[16:18] checksum, filled below
	binary.BigEndian.PutUint16(h[18:], 0) // urgent pointer
	copy(h[20:], optBytes)
	copy(h[headerLen:], payload)

	ph, err := pseudoHeader(srcIP, dstIP, protoTCP, len(h))
	if err != nil {
		return nil, err
	}
	sum := checksum(append(append([]byte{}, ph...), h...))
	binary.BigEndian.PutUint16(h[16:], sum)
	return h, nil
}

// BuildUDP constructs a UDP datagram with its pseudo-header checksum.
// A checksum that computes to zero is sent as 0xFFFF per RFC 768.
func BuildUDP(srcIP, dstIP net.IP, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	length := 8 + len(payload)
	h := make([]byte, length)
	binary.BigEndian.PutUint16(h[0:], srcPort)
	binary.BigEndian.PutUint16(h[2:], dstPort)
	binary.BigEndian.PutUint16(h[4:], uint16(length))
	copy(h[8:], payload)

	ph, err := pseudoHeader(srcIP, dstIP, protoUDP, length)
	if err != nil {
		return nil, err
	}
	sum := checksum(append(append([]byte{}, ph...), h...))
	if sum == 0 {
		sum = 0xFFFF
	}
	binary.BigEndian.PutUint16(h[6:], sum)
	return h, nil
}

// BuildICMPEcho constructs an ICMP(v4/v6) echo request. ICMPv4's
// checksum excludes a pseudo-header; ICMPv6's includes one, per RFC 4443.
func BuildICMPEcho(srcIP, dstIP net.IP, id, seq uint16, payload []byte) ([]byte, error) {
	h := make([]byte, 8+len(payload))
	isV6 := srcIP.To4() == nil

	if isV6 {
		h[0] = 128 // ICMPv6 echo request
	} else {
		h[0] = 8 // ICMPv4 echo request
	}
	h[1] = 0
	binary.BigEndian.PutUint16(h[4:], id)
	binary.BigEndian.PutUint16(h[6:], seq)
	copy(h[8:], payload)

	var sum uint16
	if isV6 {
		ph := ipv6PseudoHeader(srcIP, dstIP, protoICMPv6, len(h))
		sum = checksum(append(ph, h...))
	} else {
		sum = checksum(h)
	}
	binary.BigEndian.PutUint16(h[2:], sum)
	return h, nil
}

// BuildIPv4 wraps payload in an IPv4 header using golang.org/x/net/ipv4,
// matching the header construction the teacher's sibling pack
// (sun977-NeoScan) uses for raw-socket sends.
func BuildIPv4(srcIP, dstIP net.IP, protocol int, ttl int, id int, df bool, payload []byte) ([]byte, error) {
	if srcIP.To4() == nil || dstIP.To4() == nil {
		return nil, scanerrors.New(scanerrors.KindInvalidPacket, "BuildIPv4 requires IPv4 addresses")
	}
	flags := ipv4.HeaderFlags(0)
	if df {
		flags = ipv4.DontFragment
	}
	hdr := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(payload),
		ID:       id,
		Flags:    flags,
		TTL:      ttl,
		Protocol: protocol,
		Src:      srcIP,
		Dst:      dstIP,
	}
	raw, err := hdr.Marshal()
	if err != nil {
		return nil, scanerrors.Wrap(scanerrors.KindInvalidPacket, err, "marshal ipv4 header")
	}
	binary.BigEndian.PutUint16(raw[10:], checksum(raw))
	return append(raw, payload...), nil
}

