// Package sigdb implements the Signature Database and Fuzzy Matcher
// (§4.G): a process-wide, immutable snapshot of OsSignatures loaded
// from JSON or YAML, and the tolerance-based scorer that ranks a
// collected fingerprint against every signature in the snapshot.
package sigdb

import "time"

// TCPSignature is the TCP/IP-stack half of an OsSignature (§3).
type TCPSignature struct {
	TTLRange        [2]uint8  `json:"ttl_range" yaml:"ttl_range"`
	WindowSizeRange [2]uint32 `json:"window_size_range" yaml:"window_size_range"`
	TypicalMSS      *uint16   `json:"typical_mss,omitempty" yaml:"typical_mss,omitempty"`
	DFFlag          *bool     `json:"df_flag,omitempty" yaml:"df_flag,omitempty"`
	ECNSupport      *bool     `json:"ecn_support,omitempty" yaml:"ecn_support,omitempty"`
	TCPOptionOrder  []string  `json:"tcp_options,omitempty" yaml:"tcp_options,omitempty"`
}

// ICMPSignature describes expected ICMP behavior.
type ICMPSignature struct {
	EchoesFullPayload   *bool   `json:"icmp_echoes_payload,omitempty" yaml:"icmp_echoes_payload,omitempty"`
	RateLimitPattern    *string `json:"icmp_rate_limit_pattern,omitempty" yaml:"icmp_rate_limit_pattern,omitempty"`
	AnswersTimestampReq *bool   `json:"answers_timestamp_req,omitempty" yaml:"answers_timestamp_req,omitempty"`
}

// UDPSignature describes expected UDP-probe behavior.
type UDPSignature struct {
	ResponsePattern *string `json:"udp_response_pattern,omitempty" yaml:"udp_response_pattern,omitempty"`
}

// ProtocolHints are optional application-layer string hints (SSH
// banner substring, HTTP Server header substring, SMB OS string) that
// narrow a candidate without needing raw-socket evidence.
type ProtocolHints struct {
	SSHBannerHint string `json:"ssh_banner_hint,omitempty" yaml:"ssh_banner_hint,omitempty"`
	HTTPServerHint string `json:"http_server_hint,omitempty" yaml:"http_server_hint,omitempty"`
	SMBOSHint     string `json:"smb_os_hint,omitempty" yaml:"smb_os_hint,omitempty"`
}

// ClockFreqClass is the canonical kernel-timer frequency a clock-skew
// estimate is compared against (§4.G clock-skew sub-score).
type ClockFreqClass float64

const (
	FreqClass64   ClockFreqClass = 64
	FreqClass100  ClockFreqClass = 100
	FreqClass250  ClockFreqClass = 250
	FreqClass1000 ClockFreqClass = 1000
)

// OsSignature is one stored candidate in the database (§3, §6).
type OsSignature struct {
	OSName           string         `json:"os_name" yaml:"os_name"`
	OSVersion        string         `json:"os_version,omitempty" yaml:"os_version,omitempty"`
	OSFamily         string         `json:"os_family" yaml:"os_family"`
	TCP              *TCPSignature  `json:"tcp_signature,omitempty" yaml:"tcp_signature,omitempty"`
	ICMP             *ICMPSignature `json:"icmp_signature,omitempty" yaml:"icmp_signature,omitempty"`
	UDP              *UDPSignature  `json:"udp_signature,omitempty" yaml:"udp_signature,omitempty"`
	Protocol         *ProtocolHints `json:"protocol_hints,omitempty" yaml:"protocol_hints,omitempty"`
	ClockFreqClass   ClockFreqClass `json:"clock_freq_class,omitempty" yaml:"clock_freq_class,omitempty"`
	ConfidenceWeight float64        `json:"confidence_weight" yaml:"confidence_weight"`

	// extra preserves unrecognized fields for round-trip fidelity
	// (§6: "Unknown fields are preserved for round-trip").
	extra map[string]interface{}
}

// Metadata describes the database as a whole (§6 signature file format).
type Metadata struct {
	Name            string    `json:"name" yaml:"name"`
	Version         string    `json:"version" yaml:"version"`
	Created         time.Time `json:"created" yaml:"created"`
	Modified        time.Time `json:"modified" yaml:"modified"`
	SignatureCount  int       `json:"signature_count" yaml:"signature_count"`
	Description     string    `json:"description,omitempty" yaml:"description,omitempty"`
	Author          string    `json:"author,omitempty" yaml:"author,omitempty"`
}

// Database is a read-only-after-load collection of OsSignatures plus
// metadata, shared immutably across all concurrent scans (§3
// "Ownership", §5 "Shared resources").
type Database struct {
	Metadata   Metadata
	Signatures []OsSignature
}

// ValidationIssue names one problem found by Validate.
type ValidationIssue struct {
	Index   int
	OSName  string
	Message string
}

// ValidationReport is the result of Validate.
type ValidationReport struct {
	Valid   int
	Invalid int
	Issues  []ValidationIssue
}
