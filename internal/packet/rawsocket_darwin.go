//go:build darwin

package packet

import "github.com/netrecon/netrecon/internal/scanerrors"

// BindToInterface is not implemented on Darwin; IP_BOUND_IF would be the
// platform equivalent of Linux's SO_BINDTODEVICE but is out of scope
// here since no component in this repo binds a raw socket to an
// interface on macOS.
func (s *unixRawSocket) BindToInterface(name string) error {
	return scanerrors.New(scanerrors.KindPermissionDenied, "BindToInterface is unsupported on darwin")
}
