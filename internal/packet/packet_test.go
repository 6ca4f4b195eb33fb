package packet

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcIP = net.ParseIP("10.0.0.1")
	dstIP = net.ParseIP("10.0.0.2")
)

func TestBuildParseTCPRoundTrip(t *testing.T) {
	opts := []TCPOption{
		{Kind: OptMSS, Data: []byte{0x05, 0xb4}},
		{Kind: OptSACKPermitted},
		{Kind: OptTimestamp, Data: make([]byte, 8)},
		{Kind: OptNOP},
		{Kind: OptWindowScale, Data: []byte{7}},
	}
	raw, err := BuildTCP(srcIP, dstIP, 54321, 80, 1000, 0, FlagSYN, 65535, opts, nil)
	require.NoError(t, err)

	seg := parseTCP(raw).(*TCPSegment)
	assert.EqualValues(t, 54321, seg.SrcPort)
	assert.EqualValues(t, 80, seg.DstPort)
	assert.EqualValues(t, 1000, seg.Seq)
	assert.Equal(t, FlagSYN, seg.Flags)
	assert.EqualValues(t, 65535, seg.Window)
	require.Len(t, seg.Options, 5)
	assert.Equal(t, OptMSS, seg.Options[0].Kind)
	assert.Equal(t, OptWindowScale, seg.Options[4].Kind)
}

func TestBuildTCPChecksumIsRFCCorrect(t *testing.T) {
	raw, err := BuildTCP(srcIP, dstIP, 1111, 80, 0, 0, FlagSYN, 1024, nil, nil)
	require.NoError(t, err)

	ph := ipv4PseudoHeader(srcIP, dstIP, protoTCP, len(raw))
	full := append(ph, raw...)
	assert.Zero(t, checksum(full))
}

func TestEncodeTCPOptionsTooLarge(t *testing.T) {
	opts := make([]TCPOption, 0, 20)
	for i := 0; i < 20; i++ {
		opts = append(opts, TCPOption{Kind: OptTimestamp, Data: make([]byte, 8)})
	}
	_, err := EncodeTCPOptions(opts)
	assert.Error(t, err)
}

func TestBuildUDPChecksum(t *testing.T) {
	raw, err := BuildUDP(srcIP, dstIP, 5353, 53, []byte("query"))
	require.NoError(t, err)

	dgram := parseUDP(raw).(*UDPDatagram)
	assert.EqualValues(t, 5353, dgram.SrcPort)
	assert.EqualValues(t, 53, dgram.DstPort)
	assert.Equal(t, []byte("query"), dgram.Payload)

	ph := ipv4PseudoHeader(srcIP, dstIP, protoUDP, len(raw))
	assert.Zero(t, checksum(append(ph, raw...)))
}

func TestBuildICMPEchoChecksum(t *testing.T) {
	raw, err := BuildICMPEcho(srcIP, dstIP, 42, 1, []byte("ping"))
	require.NoError(t, err)
	assert.Zero(t, checksum(raw))

	icmpPkt := parseICMP(raw).(*ICMPPacket)
	assert.EqualValues(t, 8, icmpPkt.Type)
	assert.EqualValues(t, 42, icmpPkt.ID)
	assert.EqualValues(t, 1, icmpPkt.Seq)
}

func TestParseIPv4TruncatedIsMalformed(t *testing.T) {
	_, err := ParseIPv4([]byte{0x45, 0x00})
	assert.Error(t, err)
}

func TestParseIPv4RejectsBeyondTotalLength(t *testing.T) {
	payload, err := BuildUDP(srcIP, dstIP, 1, 2, []byte("hi"))
	require.NoError(t, err)
	raw, err := BuildIPv4(srcIP, dstIP, protoUDP, 64, 1, true, payload)
	require.NoError(t, err)
	raw = append(raw, []byte("trailing")...) // bytes past the IPv4 total length

	pkt, err := ParseIPv4(raw)
	require.NoError(t, err)
	dgram, ok := pkt.Payload.(*UDPDatagram)
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), dgram.Payload)
}

func TestDecodeTCPOptionsPreservesOrder(t *testing.T) {
	opts := []TCPOption{
		{Kind: OptMSS, Data: []byte{0x05, 0xb4}},
		{Kind: OptNOP},
		{Kind: OptNOP},
		{Kind: OptWindowScale, Data: []byte{7}},
		{Kind: OptSACKPermitted},
		{Kind: OptTimestamp, Data: make([]byte, 8)},
	}
	encoded, err := EncodeTCPOptions(opts)
	require.NoError(t, err)
	decoded := DecodeTCPOptions(encoded)
	require.Len(t, decoded, 6)
	for i, o := range opts {
		assert.Equal(t, o.Kind, decoded[i].Kind)
	}
}
