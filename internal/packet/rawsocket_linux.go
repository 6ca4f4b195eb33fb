//go:build linux

package packet

import (
	"golang.org/x/sys/unix"

	"github.com/netrecon/netrecon/internal/scanerrors"
)

// BindToInterface restricts the raw socket to one network interface via
// SO_BINDTODEVICE, a Linux-only socket option.
func (s *unixRawSocket) BindToInterface(name string) error {
	if err := unix.SetsockoptString(s.fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, name); err != nil {
		return scanerrors.Wrap(scanerrors.KindPermissionDenied, err, "bind to interface %s", name)
	}
	return nil
}
