package packet

import (
	"encoding/binary"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/netrecon/netrecon/internal/scanerrors"
)

// TCPSegment is the typed payload of an IPv4/IPv6 packet carrying TCP.
type TCPSegment struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            uint16
	Window           uint16
	Options          []TCPOption
	Payload          []byte
}

// UDPDatagram is the typed payload of a packet carrying UDP.
type UDPDatagram struct {
	SrcPort, DstPort uint16
	Payload          []byte
}

// ICMPPacket is the typed payload of a packet carrying ICMP(v4/v6).
type ICMPPacket struct {
	Type, Code uint8
	ID, Seq    uint16 // only meaningful for echo request/reply
	Payload    []byte
}

// OtherPayload is returned for protocols the engine does not decode further.
type OtherPayload struct {
	Protocol int
	Bytes    []byte
}

// Malformed marks a packet that failed to parse instead of panicking.
type Malformed struct {
	Reason string
}

// IPv4Packet is a parsed IPv4 datagram with its typed payload.
type IPv4Packet struct {
	Header  ipv4.Header
	Payload interface{} // *TCPSegment | *UDPDatagram | *ICMPPacket | *OtherPayload | *Malformed
}

// IPv6Packet is a parsed IPv6 datagram with its typed payload.
type IPv6Packet struct {
	Header  ipv6.Header
	Payload interface{}
}

// ParseIPv4 parses an IPv4 packet, rejecting truncated data and refusing
// to read past the header's declared total length.
func ParseIPv4(data []byte) (*IPv4Packet, error) {
	hdr, err := ipv4.ParseHeader(data)
	if err != nil {
		return nil, scanerrors.Wrap(scanerrors.KindInvalidPacket, err, "parse ipv4 header")
	}
	if hdr.TotalLen > len(data) {
		return &IPv4Packet{Header: *hdr, Payload: &Malformed{Reason: "total length exceeds captured data"}}, nil
	}
	body := data[hdr.Len:hdr.TotalLen]
	payload := parseTransport(hdr.Protocol, body)
	return &IPv4Packet{Header: *hdr, Payload: payload}, nil
}

// ParseIPv6 parses an IPv6 packet. Extension headers are not walked;
// NextHeader is treated as the transport protocol directly, which
// covers the TCP/UDP/ICMPv6 cases this engine needs.
func ParseIPv6(data []byte) (*IPv6Packet, error) {
	hdr, err := ipv6.ParseHeader(data)
	if err != nil {
		return nil, scanerrors.Wrap(scanerrors.KindInvalidPacket, err, "parse ipv6 header")
	}
	const ipv6HeaderLen = 40
	total := ipv6HeaderLen + hdr.PayloadLen
	if total > len(data) {
		return &IPv6Packet{Header: *hdr, Payload: &Malformed{Reason: "payload length exceeds captured data"}}, nil
	}
	body := data[ipv6HeaderLen:total]
	payload := parseTransport(hdr.NextHeader, body)
	return &IPv6Packet{Header: *hdr, Payload: payload}, nil
}

func parseTransport(protocol int, body []byte) interface{} {
	switch protocol {
	case protoTCP:
		return parseTCP(body)
	case protoUDP:
		return parseUDP(body)
	case protoICMP, protoICMPv6:
		return parseICMP(body)
	default:
		return &OtherPayload{Protocol: protocol, Bytes: body}
	}
}

func parseTCP(body []byte) interface{} {
	if len(body) < 20 {
		return &Malformed{Reason: "tcp segment shorter than 20 bytes"}
	}
	dataOffset := int(body[12]>>4) * 4
	if dataOffset < 20 || dataOffset > len(body) {
		return &Malformed{Reason: "tcp data offset out of range"}
	}
	flags := uint16(body[13]) | (uint16(body[12]&0x01) << 8)
	return &TCPSegment{
		SrcPort: binary.BigEndian.Uint16(body[0:]),
		DstPort: binary.BigEndian.Uint16(body[2:]),
		Seq:     binary.BigEndian.Uint32(body[4:]),
		Ack:     binary.BigEndian.Uint32(body[8:]),
		Flags:   flags,
		Window:  binary.BigEndian.Uint16(body[14:]),
		Options: DecodeTCPOptions(body[20:dataOffset]),
		Payload: body[dataOffset:],
	}
}

func parseUDP(body []byte) interface{} {
	if len(body) < 8 {
		return &Malformed{Reason: "udp datagram shorter than 8 bytes"}
	}
	length := int(binary.BigEndian.Uint16(body[4:]))
	if length > len(body) {
		length = len(body)
	}
	return &UDPDatagram{
		SrcPort: binary.BigEndian.Uint16(body[0:]),
		DstPort: binary.BigEndian.Uint16(body[2:]),
		Payload: body[8:length],
	}
}

func parseICMP(body []byte) interface{} {
	if len(body) < 8 {
		return &Malformed{Reason: "icmp packet shorter than 8 bytes"}
	}
	p := &ICMPPacket{Type: body[0], Code: body[1], Payload: body[8:]}
	switch p.Type {
	case 0, 8, 128, 129: // echo reply/request (v4/v6)
		p.ID = binary.BigEndian.Uint16(body[4:])
		p.Seq = binary.BigEndian.Uint16(body[6:])
	}
	return p
}

// FilteredUnreachableCodes enumerates the ICMPv4 destination-unreachable codes
// the Port Scanner treats as "filtered" evidence (§4.D).
var FilteredUnreachableCodes = map[uint8]bool{
	1: true, 2: true, 3: true, 9: true, 10: true, 13: true,
}

// IsPortUnreachable reports whether an ICMP packet is a type-3 code-3
// (port unreachable), the UDP scan's "closed" signal.
func IsPortUnreachable(p *ICMPPacket) bool {
	return p != nil && p.Type == 3 && p.Code == 3
}

// LocalIP returns the preferred local source address used to reach dst,
// by opening (and throwing away) a UDP "connection" - the conventional
// no-syscall trick for discovering the outbound-routed interface address.
func LocalIP(dst net.IP) (net.IP, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(dst.String(), "9"))
	if err != nil {
		return nil, scanerrors.Wrap(scanerrors.KindNetworkUnreachable, err, "determine local route to %s", dst)
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)
	return addr.IP, nil
}
