package discovery

import (
	"bufio"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"
)

// arpEntry is one resolved (IP, MAC) pair from the kernel's neighbor table.
type arpEntry struct {
	IP  string
	MAC string
}

// readARPTable reads the OS-maintained ARP/neighbor cache. Performing a
// literal broadcast ARP request needs an AF_PACKET raw socket, which is
// Linux-only and a layer below everything internal/packet models (IP and
// up); instead this consults the table the kernel already maintains from
// its own link-layer resolution, which is what a UDP dial to the target
// forces if the entry is not already present.
func readARPTable() ([]arpEntry, error) {
	switch runtime.GOOS {
	case "windows":
		return readARPWindows()
	case "darwin":
		return readARPDarwin()
	default:
		return readARPLinux()
	}
}

func readARPLinux() ([]arpEntry, error) {
	out, err := exec.Command("cat", "/proc/net/arp").Output()
	if err != nil {
		out, err = exec.Command("arp", "-n").Output()
		if err != nil {
			return nil, err
		}
		return parseARPCommand(string(out)), nil
	}
	return parseProcARP(string(out)), nil
}

func parseProcARP(output string) []arpEntry {
	var entries []arpEntry
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Scan() // header
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mac := normalizeMAC(fields[3])
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}
		entries = append(entries, arpEntry{IP: fields[0], MAC: mac})
	}
	return entries
}

func parseARPCommand(output string) []arpEntry {
	var entries []arpEntry
	re := regexp.MustCompile(`\((\d+\.\d+\.\d+\.\d+)\)\s+at\s+([0-9a-fA-F:]+)`)
	for _, line := range strings.Split(output, "\n") {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		mac := normalizeMAC(m[2])
		if mac == "" {
			continue
		}
		entries = append(entries, arpEntry{IP: m[1], MAC: mac})
	}
	return entries
}

func readARPDarwin() ([]arpEntry, error) {
	out, err := exec.Command("arp", "-an").Output()
	if err != nil {
		return nil, err
	}
	return parseARPCommand(string(out)), nil
}

func readARPWindows() ([]arpEntry, error) {
	out, err := exec.Command("arp", "-a").Output()
	if err != nil {
		return nil, err
	}
	var entries []arpEntry
	re := regexp.MustCompile(`^\s*(\d+\.\d+\.\d+\.\d+)\s+([0-9a-fA-F-]+)`)
	for _, line := range strings.Split(string(out), "\n") {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		mac := normalizeMAC(m[2])
		if mac == "" {
			continue
		}
		entries = append(entries, arpEntry{IP: m[1], MAC: mac})
	}
	return entries, nil
}

func normalizeMAC(mac string) string {
	if strings.Contains(mac, "incomplete") {
		return ""
	}
	mac = strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return ""
	}
	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}
	return strings.Join(parts, ":")
}

// osARPResolver forces link-layer resolution with a harmless UDP dial and
// then polls the kernel's ARP table for the target, which is this
// package's "broadcast request, accept first reply" analog for the ARP
// host-discovery method (§4.C method 1).
type osARPResolver struct{}

func (osARPResolver) Resolve(ip string, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)

	conn, err := net.DialTimeout("udp4", net.JoinHostPort(ip, "9"), timeout)
	if err == nil {
		conn.Close()
	}

	for {
		entries, err := readARPTable()
		if err != nil {
			return "", false, err
		}
		for _, e := range entries {
			if e.IP == ip {
				return e.MAC, true, nil
			}
		}
		if time.Now().After(deadline) {
			return "", false, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
}
