//go:build linux || darwin

// Package packet: raw socket implementation for unix-like systems,
// ported from the syscall-based RawSocket in sun977-NeoScan's
// internal/core/lib/network/netraw/socket_linux.go onto the portable
// golang.org/x/sys/unix call surface so the same code compiles on both
// Linux and Darwin.
package packet

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/netrecon/netrecon/internal/scanerrors"
)

type unixRawSocket struct {
	fd       int
	protocol RawProtocol
}

func openRawPlatform(protocol RawProtocol) (RawSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, int(protocol))
	if err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return nil, scanerrors.Wrap(scanerrors.KindPermissionDenied, err, "open raw socket for protocol %d", protocol)
		}
		return nil, scanerrors.Wrap(scanerrors.KindResourceExhausted, err, "open raw socket for protocol %d", protocol)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		unix.Close(fd)
		return nil, scanerrors.Wrap(scanerrors.KindResourceExhausted, err, "set IP_HDRINCL")
	}
	return &unixRawSocket{fd: fd, protocol: protocol}, nil
}

func (s *unixRawSocket) Send(dst net.IP, pkt []byte) error {
	dst4 := dst.To4()
	if dst4 == nil {
		return scanerrors.New(scanerrors.KindInvalidTarget, "raw send requires an IPv4 destination, got %s", dst)
	}
	addr := &unix.SockaddrInet4{}
	copy(addr.Addr[:], dst4)
	if err := unix.Sendto(s.fd, pkt, 0, addr); err != nil {
		return scanerrors.Wrap(scanerrors.KindNetworkUnreachable, err, "sendto %s", dst)
	}
	return nil
}

func (s *unixRawSocket) Recv(buf []byte, timeout time.Duration) (int, net.IP, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return 0, nil, scanerrors.Wrap(scanerrors.KindResourceExhausted, err, "set receive timeout")
	}
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, ErrTimeout
		}
		return 0, nil, scanerrors.Wrap(scanerrors.KindNetworkUnreachable, err, "recvfrom")
	}
	var src net.IP
	if addr, ok := from.(*unix.SockaddrInet4); ok {
		src = net.IP(addr.Addr[:])
	}
	return n, src, nil
}

func (s *unixRawSocket) Close() error {
	return unix.Close(s.fd)
}
