package packet

import (
	"net"
	"time"

	"github.com/netrecon/netrecon/internal/scanerrors"
)

// RawProtocol is the IP protocol number a raw socket is opened for.
type RawProtocol int

const (
	RawProtoICMP RawProtocol = protoICMP
	RawProtoTCP  RawProtocol = protoTCP
	RawProtoUDP  RawProtocol = protoUDP
)

// ErrTimeout is returned by RawSocket.Recv when no packet arrives before
// the deadline. It is a distinct sentinel so callers can use errors.Is
// rather than matching net.Error.Timeout() on a wrapped error.
var ErrTimeout = scanerrors.New(scanerrors.KindTimeout, "raw socket read timed out")

// RawSocket sends and receives fully-built IP datagrams. Writes to a
// single socket are serialized by the caller's usage pattern per
// §5 ("writes are serialized per socket"); this type itself performs
// one syscall per call and does no internal buffering.
type RawSocket interface {
	// Send transmits packet (which must already include the IP header
	// when opened with IP_HDRINCL semantics) to dst.
	Send(dst net.IP, pkt []byte) error
	// Recv blocks until a packet arrives or timeout elapses, returning
	// ErrTimeout in the latter case.
	Recv(buf []byte, timeout time.Duration) (n int, src net.IP, err error)
	// BindToInterface restricts the socket to one network interface.
	BindToInterface(name string) error
	Close() error
}

// OpenRaw opens a raw IP socket for the given protocol. It returns a
// PermissionDenied scanerrors.Error if the process lacks the
// capability (CAP_NET_RAW / administrator); the caller decides whether
// to fall back to a higher-level technique (e.g. TCP connect instead of
// SYN scan).
func OpenRaw(protocol RawProtocol) (RawSocket, error) {
	return openRawPlatform(protocol)
}
