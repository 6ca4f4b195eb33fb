package sigdb

// ptrU16 and ptrBool are small helpers for the optional pointer fields
// OsSignature uses to distinguish "unspecified" from "false"/"zero".
func ptrU16(v uint16) *uint16 { return &v }
func ptrBool(v bool) *bool    { return &v }
func ptrStr(v string) *string { return &v }

// Builtin returns the small curated set of signatures shipped with the
// binary (§9 open question: "treat the built-in set as a small curated
// list (≈6)"), adapted from JedizLaPulga-NNS's KnownOSSignatures table
// (internal/fingerprint/fingerprint.go) and extended with the ICMP/UDP/
// clock-skew fields that table didn't carry. Operators load a larger
// signature file over this set via Load + Merge.
func Builtin() *Database {
	return &Database{
		Metadata: Metadata{
			Name:           "builtin",
			Version:        "1.0",
			Description:    "curated built-in OS signatures",
			SignatureCount: 6,
		},
		Signatures: []OsSignature{
			{
				OSName: "Linux", OSVersion: "5.x", OSFamily: "linux",
				TCP: &TCPSignature{
					TTLRange: [2]uint8{64, 64}, WindowSizeRange: [2]uint32{29200, 65535},
					TypicalMSS: ptrU16(1460), DFFlag: ptrBool(true), ECNSupport: ptrBool(true),
					TCPOptionOrder: []string{"mss", "sack_permitted", "timestamp", "nop", "window_scale"},
				},
				ICMP:           &ICMPSignature{EchoesFullPayload: ptrBool(true), AnswersTimestampReq: ptrBool(false)},
				UDP:            &UDPSignature{ResponsePattern: ptrStr("rate_limited")},
				ClockFreqClass: FreqClass1000,
				ConfidenceWeight: 0.9,
			},
			{
				OSName: "Linux", OSVersion: "3.x/4.x", OSFamily: "linux",
				TCP: &TCPSignature{
					TTLRange: [2]uint8{64, 64}, WindowSizeRange: [2]uint32{14600, 29200},
					TypicalMSS: ptrU16(1460), DFFlag: ptrBool(true), ECNSupport: ptrBool(true),
					TCPOptionOrder: []string{"mss", "sack_permitted", "timestamp", "nop", "window_scale"},
				},
				ICMP:           &ICMPSignature{EchoesFullPayload: ptrBool(true), AnswersTimestampReq: ptrBool(false)},
				UDP:            &UDPSignature{ResponsePattern: ptrStr("rate_limited")},
				ClockFreqClass: FreqClass250,
				ConfidenceWeight: 0.8,
			},
			{
				OSName: "Windows", OSVersion: "10/11", OSFamily: "windows",
				TCP: &TCPSignature{
					TTLRange: [2]uint8{128, 128}, WindowSizeRange: [2]uint32{64240, 65535},
					TypicalMSS: ptrU16(1460), DFFlag: ptrBool(true), ECNSupport: ptrBool(true),
					TCPOptionOrder: []string{"mss", "nop", "window_scale", "sack_permitted"},
				},
				ICMP:           &ICMPSignature{EchoesFullPayload: ptrBool(true), AnswersTimestampReq: ptrBool(false)},
				UDP:            &UDPSignature{ResponsePattern: ptrStr("always_respond")},
				Protocol:       &ProtocolHints{SMBOSHint: "Windows"},
				ClockFreqClass: FreqClass100,
				ConfidenceWeight: 0.9,
			},
			{
				OSName: "Windows", OSVersion: "7/8/Server 2019", OSFamily: "windows",
				TCP: &TCPSignature{
					TTLRange: [2]uint8{128, 128}, WindowSizeRange: [2]uint32{8192, 65535},
					TypicalMSS: ptrU16(1460), DFFlag: ptrBool(true), ECNSupport: ptrBool(false),
					TCPOptionOrder: []string{"mss", "nop", "window_scale", "sack_permitted"},
				},
				ICMP:           &ICMPSignature{EchoesFullPayload: ptrBool(true), AnswersTimestampReq: ptrBool(false)},
				UDP:            &UDPSignature{ResponsePattern: ptrStr("always_respond")},
				Protocol:       &ProtocolHints{SMBOSHint: "Windows"},
				ClockFreqClass: FreqClass100,
				ConfidenceWeight: 0.75,
			},
			{
				OSName: "macOS", OSVersion: "10.15+", OSFamily: "darwin",
				TCP: &TCPSignature{
					TTLRange: [2]uint8{64, 64}, WindowSizeRange: [2]uint32{65535, 65535},
					TypicalMSS: ptrU16(1460), DFFlag: ptrBool(true), ECNSupport: ptrBool(true),
					TCPOptionOrder: []string{"mss", "nop", "window_scale", "nop", "nop", "timestamp", "sack_permitted"},
				},
				ICMP:           &ICMPSignature{EchoesFullPayload: ptrBool(true), AnswersTimestampReq: ptrBool(false)},
				UDP:            &UDPSignature{ResponsePattern: ptrStr("rate_limited")},
				Protocol:       &ProtocolHints{HTTPServerHint: "Darwin"},
				ClockFreqClass: FreqClass1000,
				ConfidenceWeight: 0.85,
			},
			{
				OSName: "FreeBSD", OSVersion: "12+", OSFamily: "bsd",
				TCP: &TCPSignature{
					TTLRange: [2]uint8{64, 64}, WindowSizeRange: [2]uint32{65535, 65535},
					TypicalMSS: ptrU16(1460), DFFlag: ptrBool(true), ECNSupport: ptrBool(true),
					TCPOptionOrder: []string{"mss", "nop", "window_scale", "sack_permitted", "timestamp"},
				},
				ICMP:           &ICMPSignature{EchoesFullPayload: ptrBool(true), AnswersTimestampReq: ptrBool(true)},
				UDP:            &UDPSignature{ResponsePattern: ptrStr("rate_limited")},
				ClockFreqClass: FreqClass1000,
				ConfidenceWeight: 0.75,
			},
		},
	}
}
