package portscan

import (
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/netrecon/netrecon/internal/models"
)

func TestParsePortRange(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []uint16
		wantErr bool
	}{
		{name: "single port", input: "80", want: []uint16{80}},
		{name: "multiple ports", input: "80,443,8080", want: []uint16{80, 443, 8080}},
		{name: "port range", input: "8000-8003", want: []uint16{8000, 8001, 8002, 8003}},
		{name: "mixed ports and ranges", input: "22,80,443,8000-8002", want: []uint16{22, 80, 443, 8000, 8001, 8002}},
		{name: "with spaces", input: "80, 443, 8080", want: []uint16{80, 443, 8080}},
		{name: "duplicate ports", input: "80,80,443,80", want: []uint16{80, 443}},
		{name: "empty string", input: "", wantErr: true},
		{name: "invalid port number", input: "abc", wantErr: true},
		{name: "port out of range", input: "70000", wantErr: true},
		{name: "port zero", input: "0", wantErr: true},
		{name: "invalid range", input: "100-50", wantErr: true},
		{name: "malformed range", input: "80-90-100", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePortRange(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePortRange() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePortRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCIDR(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantErr   bool
	}{
		{name: "single IP", input: "192.168.1.1", wantCount: 1},
		{name: "hostname", input: "example.com", wantCount: 1},
		{name: "/30 subnet (2 hosts)", input: "192.168.1.0/30", wantCount: 2},
		{name: "/24 subnet", input: "192.168.1.0/24", wantCount: 254},
		{name: "invalid CIDR", input: "192.168.1.0/99", wantErr: true},
		{name: "invalid format", input: "not-a-cidr/24", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCIDR(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCIDR() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(got) != tt.wantCount {
				t.Errorf("ParseCIDR() got %d hosts, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestScanConnectOpenPortAttachesBanner(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("TEST BANNER\n"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := New(Options{Timeout: time.Second, Retries: 0}, nil)
	result := s.ScanConnect(context.Background(), models.Target{Host: "127.0.0.1"}, uint16(addr.Port))

	if result.Status != models.StatusOpen {
		t.Fatalf("got status %v, want open", result.Status)
	}
	if result.Provenance != models.ProvenanceHandshake {
		t.Fatalf("got provenance %v, want tcp_handshake", result.Provenance)
	}
	if result.Banner == nil || string(result.Banner.Bytes) != "TEST BANNER\n" {
		t.Fatalf("got banner %v", result.Banner)
	}
}

func TestScanConnectClosedPortIsConnRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listens anymore; connections are refused

	s := New(Options{Timeout: time.Second, Retries: 0}, nil)
	result := s.ScanConnect(context.Background(), models.Target{Host: "127.0.0.1"}, uint16(addr.Port))

	if result.Status != models.StatusClosed {
		t.Fatalf("got status %v, want closed", result.Status)
	}
}

func TestScanConnectPortsScansConcurrentlyAndPreservesOrder(t *testing.T) {
	var ports []uint16
	var listeners []net.Listener
	for i := 0; i < 3; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		defer ln.Close()
		listeners = append(listeners, ln)
		ports = append(ports, uint16(ln.Addr().(*net.TCPAddr).Port))
		go func(l net.Listener) {
			for {
				conn, err := l.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}(ln)
	}

	s := New(Options{Timeout: time.Second, Retries: 0, Concurrency: 10}, nil)
	results := s.ScanConnectPorts(context.Background(), models.Target{Host: "127.0.0.1"}, ports)

	if len(results) != len(ports) {
		t.Fatalf("got %d results, want %d", len(results), len(ports))
	}
	for i, r := range results {
		if r.Port != ports[i] {
			t.Fatalf("result order mismatch at %d: got port %d, want %d", i, r.Port, ports[i])
		}
		if r.Status != models.StatusOpen {
			t.Fatalf("port %d: got status %v, want open", r.Port, r.Status)
		}
	}
}

func TestCommonPortsIncludesWellKnownServices(t *testing.T) {
	ports := CommonPorts()
	if len(ports) == 0 {
		t.Fatal("CommonPorts() returned empty slice")
	}
	want := map[uint16]bool{22: true, 80: true, 443: true, 3306: true}
	for _, p := range ports {
		delete(want, p)
	}
	if len(want) > 0 {
		t.Errorf("CommonPorts() missing expected ports: %v", want)
	}
}

func TestResolvePresetKnownNames(t *testing.T) {
	all, ok := ResolvePreset("all")
	if !ok || len(all) != 65535 || all[0] != 1 || all[len(all)-1] != 65535 {
		t.Fatalf("ResolvePreset(\"all\") = %v, %v; want 1..65535", len(all), ok)
	}

	web, ok := ResolvePreset("web")
	if !ok || len(web) == 0 {
		t.Fatal("ResolvePreset(\"web\") should return a non-empty preset")
	}
	wantWeb := map[uint16]bool{80: true, 443: true, 8080: true}
	for _, p := range web {
		delete(wantWeb, p)
	}
	if len(wantWeb) > 0 {
		t.Errorf("ResolvePreset(\"web\") missing expected ports: %v", wantWeb)
	}

	top100, ok := ResolvePreset("top100")
	if !ok || len(top100) != 100 {
		t.Fatalf("ResolvePreset(\"top100\") = %d ports, %v; want 100, true", len(top100), ok)
	}

	if _, ok := ResolvePreset("not-a-preset"); ok {
		t.Fatal("ResolvePreset should reject unrecognized names")
	}
}

func TestResolvePresetIsCaseInsensitiveAndReturnsACopy(t *testing.T) {
	a, ok := ResolvePreset("TOP100")
	if !ok {
		t.Fatal("ResolvePreset should be case-insensitive")
	}
	a[0] = 0
	b, _ := ResolvePreset("top100")
	if b[0] == 0 {
		t.Fatal("ResolvePreset must not let callers mutate the shared preset slice")
	}
}

func TestParsePortSpecPrefersPresetOverRange(t *testing.T) {
	got, err := ParsePortSpec("web")
	if err != nil {
		t.Fatalf("ParsePortSpec(\"web\") error: %v", err)
	}
	want, _ := ResolvePreset("web")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePortSpec(\"web\") = %v, want %v", got, want)
	}

	got, err = ParsePortSpec("22,80,443")
	if err != nil {
		t.Fatalf("ParsePortSpec(\"22,80,443\") error: %v", err)
	}
	if want := []uint16{22, 80, 443}; !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePortSpec(\"22,80,443\") = %v, want %v", got, want)
	}
}

func TestUDPProbePayloadsAreServiceSpecific(t *testing.T) {
	if len(udpProbePayload(53)) == 0 {
		t.Fatal("expected a non-empty DNS probe")
	}
	if len(udpProbePayload(123)) != 48 {
		t.Fatalf("expected a 48-byte NTP probe, got %d", len(udpProbePayload(123)))
	}
	if len(udpProbePayload(161)) == 0 {
		t.Fatal("expected a non-empty SNMP probe")
	}
	if len(udpProbePayload(9999)) != 1 {
		t.Fatal("expected the generic 1-byte probe for an unlisted port")
	}
}

func BenchmarkParsePortRange(b *testing.B) {
	input := "22,80,443,8000-8100,9000-9100"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParsePortRange(input)
	}
}
