//go:build !linux && !darwin

package packet

import "github.com/netrecon/netrecon/internal/scanerrors"

// openRawPlatform reports PermissionDenied on platforms without a raw
// socket implementation here (e.g. Windows, which needs WinPcap/Npcap
// bindings out of this package's scope); callers fall back to the
// TCP-connect technique per §4.A's documented policy.
func openRawPlatform(protocol RawProtocol) (RawSocket, error) {
	return nil, scanerrors.New(scanerrors.KindPermissionDenied, "raw sockets are not implemented on this platform")
}
