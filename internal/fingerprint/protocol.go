package fingerprint

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

// collectProtocolHints gathers application-layer evidence on the ports
// most likely to carry it: an SSH banner on 22, an SMB negotiate
// response on 445/139, and an HTTP Server header plus TLS handshake
// signature on 80/443.
func (c *Collector) collectProtocolHints(ctx context.Context, host string, openPorts map[uint16]bool) *ProtocolHints {
	hints := &ProtocolHints{}
	any := false

	if openPorts[22] {
		if banner := dialAndRead(ctx, host, 22, nil, c.opts.ProbeTimeout); banner != "" {
			hints.SSHBanner = banner
			hints.SSHFlavorHint = classifySSHFlavor(banner)
			any = true
		}
	}
	for _, port := range []uint16{445, 139} {
		if openPorts[port] {
			if s := smbNegotiate(ctx, host, port, c.opts.ProbeTimeout); s != "" {
				hints.SMBOSString = s
				any = true
				break
			}
		}
	}
	for _, port := range []uint16{80, 8080} {
		if openPorts[port] {
			if server := httpServerHeader(ctx, host, port, c.opts.ProbeTimeout); server != "" {
				hints.HTTPServer = server
				any = true
				break
			}
		}
	}
	for _, port := range []uint16{443, 8443} {
		if openPorts[port] {
			if cipherOrder, extensions := tlsHandshakeSignature(ctx, host, port, c.opts.ProbeTimeout); len(cipherOrder) > 0 {
				hints.TLSCipherOrder = cipherOrder
				hints.TLSExtensions = extensions
				any = true
				break
			}
		}
	}

	if !any {
		return nil
	}
	return hints
}

func classifySSHFlavor(banner string) string {
	lower := strings.ToLower(banner)
	switch {
	case strings.Contains(lower, "openssh") && strings.Contains(lower, "ubuntu"):
		return "linux_ubuntu"
	case strings.Contains(lower, "openssh") && strings.Contains(lower, "debian"):
		return "linux_debian"
	case strings.Contains(lower, "openssh"):
		return "openssh_generic"
	case strings.Contains(lower, "dropbear"):
		return "embedded_dropbear"
	default:
		return "unknown"
	}
}

func dialAndRead(ctx context.Context, host string, port uint16, probe []byte, timeout time.Duration) string {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return ""
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if probe != nil {
		_, _ = conn.Write(probe)
	}
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return ""
	}
	return strings.TrimSpace(string(buf[:n]))
}

// smbNegotiate sends a minimal SMB1 negotiate request and reports only
// whether a response arrived: it returns the fixed marker
// "smb_negotiate_response" ("" when nothing came back) and does not
// extract an OS string from the response. No SMB2/3 dialect
// negotiation is attempted.
func smbNegotiate(ctx context.Context, host string, port uint16, timeout time.Duration) string {
	req := []byte{
		0x00, 0x00, 0x00, 0x2f,
		0xff, 'S', 'M', 'B', 0x72,
		0x00, 0x00, 0x00, 0x00, 0x18,
		0x53, 0xc8,
		0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xff, 0xff,
		0xff, 0xfe,
		0x00, 0x00,
		0x0c, 0x00,
		0x02, 'N', 'T', ' ', 'L', 'M', ' ', '0', '.', '1', '2', 0x00,
	}
	resp := dialAndRead(ctx, host, port, req, timeout)
	if resp == "" {
		return ""
	}
	return "smb_negotiate_response"
}

func httpServerHeader(ctx context.Context, host string, port uint16, timeout time.Duration) string {
	req := []byte("HEAD / HTTP/1.0\r\nHost: " + host + "\r\n\r\n")
	resp := dialAndRead(ctx, host, port, req, timeout)
	for _, line := range strings.Split(resp, "\r\n") {
		if strings.HasPrefix(strings.ToLower(line), "server:") {
			return strings.TrimSpace(line[len("server:"):])
		}
	}
	return ""
}

// tlsHandshakeSignature records the cipher-suite ID a target's
// ServerHello selects, without performing a full handshake; it is a
// coarse signal, not a certificate inspection. Extension IDs are not
// extracted, so the second return value is always nil.
func tlsHandshakeSignature(ctx context.Context, host string, port uint16, timeout time.Duration) ([]uint16, []uint16) {
	hello := clientHelloForFingerprint()
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(hello); err != nil {
		return nil, nil
	}
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil || n < 6 || buf[0] != 0x16 {
		return nil, nil
	}
	return parseServerHelloCipherAndExtensions(buf[:n])
}

func clientHelloForFingerprint() []byte {
	hello := []byte{
		0x16, 0x03, 0x01, 0x00, 0x35,
		0x01, 0x00, 0x00, 0x31,
		0x03, 0x03,
	}
	hello = append(hello, make([]byte, 32)...) // client random
	hello = append(hello,
		0x00,       // empty session ID
		0x00, 0x0a, // five cipher suites
		0xc0, 0x2f, 0xc0, 0x2b, 0x00, 0x9c, 0x00, 0x2f, 0x00, 0x35,
		0x01, 0x00, // null compression only
	)
	return hello
}

// parseServerHelloCipherAndExtensions extracts the negotiated cipher
// suite, tolerating a truncated or minimal capture. Extension type IDs
// are not parsed: the second return value is always nil.
func parseServerHelloCipherAndExtensions(data []byte) ([]uint16, []uint16) {
	if len(data) < 44 {
		return nil, nil
	}
	off := 44 + int(data[43]) // the cipher suite follows the session ID
	if len(data) < off+2 {
		return nil, nil
	}
	cipher := uint16(data[off])<<8 | uint16(data[off+1])
	return []uint16{cipher}, nil
}
