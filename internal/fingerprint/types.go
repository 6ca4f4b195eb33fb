// Package fingerprint implements the OS Fingerprint Collector (§4.F):
// up to seven independently-optional sub-vectors describing a target's
// TCP/IP stack behavior, assembled into one OsFingerprint for the
// Signature DB's fuzzy matcher to score.
package fingerprint

import "time"

// IPIDPattern classifies how a target's IP identification field evolves
// across a burst of probes.
type IPIDPattern string

const (
	IPIDIncremental IPIDPattern = "incremental"
	IPIDRandom      IPIDPattern = "random"
	IPIDZero        IPIDPattern = "zero"
	IPIDFixed       IPIDPattern = "fixed"
	IPIDUnknown     IPIDPattern = "unknown"
)

// BurstPattern classifies how a target responds to a burst of identical
// probes, used by both the ICMP and UDP sub-vectors.
type BurstPattern string

const (
	BurstAlwaysRespond BurstPattern = "always_respond"
	BurstSilentDrop    BurstPattern = "silent_drop"
	BurstRateLimited   BurstPattern = "rate_limited"
	BurstSelective     BurstPattern = "selective"
)

// TCPFeatures is collected from a SYN probe to a confirmed-open port.
type TCPFeatures struct {
	InitialTTL    uint8
	WindowSize    uint16
	MSS           uint16
	OptionOrder   []uint8 // TCP option kinds in the order the SYN-ACK sent them
	DF            bool
	SynAckRTT     time.Duration
	RSTOnFIN      bool
	RSTOnNull     bool
	RSTOnXmas     bool
	IPIDPattern   IPIDPattern
	ECNEchoed     bool
}

// ICMPFeatures is collected from ICMP echo and a probe to a known-
// closed UDP port.
type ICMPFeatures struct {
	EchoTTL              uint8
	EchoesFullPayload    bool
	UnreachableCode      uint8
	AnswersTimestampReq  bool
	BurstPattern         BurstPattern
}

// UDPFeatures is collected from a probe to a known-closed port.
type UDPFeatures struct {
	PortUnreachable   bool
	EchoedBytes       int
	BurstPattern      BurstPattern
}

// ProtocolHints records application-layer evidence that narrows down
// the OS, independent of the raw TCP/IP behavior.
type ProtocolHints struct {
	SSHBanner      string
	SSHFlavorHint  string
	SMBOSString    string
	HTTPServer     string
	TLSCipherOrder []uint16
	TLSExtensions  []uint16
}

// ClockSkew is the outcome of the OLS fit over TCP timestamp samples.
type ClockSkew struct {
	SkewPPM            float64
	EstimatedFreqHz     float64
	ResidualStdDev      float64
	Confidence          float64
	Samples             int
	InsufficientData    bool
}

// PassiveFeatures accumulates statistics from externally-captured
// packets rather than active probes (§4.F, "fed packets... via §6").
type PassiveFeatures struct {
	Samples           int
	MostCommonTTL     uint8
	MostCommonMSS     uint16
	MostCommonWindow  uint16
	MostCommonDF      bool
	OptionString      string
	WindowScale       uint8
	EstimatedUptime   time.Duration
}

// ActiveProbeResult is one response record from the T1-T7/U1/IE/SEQ/ECN
// battery (§4.F, "never enabled by default").
type ActiveProbeResult struct {
	Probe      string // e.g. "T1", "U1", "IE", "SEQ", "ECN"
	Responded  bool
	TTL        uint8
	WindowSize uint16
	Flags      uint16
	DF         bool
	ICMPType   uint8
	ICMPCode   uint8
}

// OsFingerprint is the full, partially-populated feature vector for one
// target (§3). Every sub-vector pointer is nil if its collection was
// disabled or failed.
type OsFingerprint struct {
	TCPFeatures      *TCPFeatures
	ICMPFeatures     *ICMPFeatures
	UDPFeatures      *UDPFeatures
	ProtocolHints    *ProtocolHints
	ClockSkew        *ClockSkew
	Passive          *PassiveFeatures
	ActiveProbes     []ActiveProbeResult
	CollectionTimeUs int64
}
