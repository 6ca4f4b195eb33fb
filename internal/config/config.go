// Package config loads the core's startup configuration from TOML,
// following §6 of the specification. Decoding uses
// github.com/pelletier/go-toml/v2, the TOML library already present in
// this retrieval pack's dependency graph (pulled in transitively by
// Viper in lucchesi-sec-portscan and sun977-NeoScan).
package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/netrecon/netrecon/internal/scanerrors"
)

// ScannerConfig is the [scanner] section.
type ScannerConfig struct {
	DefaultTimeoutMs   uint32 `toml:"default_timeout_ms"`
	MaxConcurrentScans uint32 `toml:"max_concurrent_scans"`
	InitialPPS         uint32 `toml:"initial_pps"`
	MaxPPS             uint32 `toml:"max_pps"`
	MinPPS             uint32 `toml:"min_pps"`
	AdaptiveThrottling bool   `toml:"adaptive_throttling"`
}

// TechniqueConfig is shared by [scanner.tcp_connect|tcp_syn|udp].
type TechniqueConfig struct {
	Enabled      bool   `toml:"enabled"`
	TimeoutMs    uint32 `toml:"timeout_ms"`
	Retries      uint8  `toml:"retries"`
	RetryDelayMs uint32 `toml:"retry_delay_ms"`
}

// ThrottlingConfig is the [throttling] section.
type ThrottlingConfig struct {
	SuccessThreshold   float32 `toml:"success_threshold"`
	FailureThreshold   float32 `toml:"failure_threshold"`
	RateIncreaseFactor float32 `toml:"rate_increase_factor"`
	RateDecreaseFactor float32 `toml:"rate_decrease_factor"`
}

// DetectionConfig is the [detection] section.
type DetectionConfig struct {
	EnableServiceDetection bool   `toml:"enable_service_detection"`
	BannerTimeoutMs        uint32 `toml:"banner_timeout_ms"`
	MaxBannerSize          uint32 `toml:"max_banner_size"`
}

// OSFingerprintConfig is the [os_fingerprint] section.
type OSFingerprintConfig struct {
	EnableTCP             bool    `toml:"enable_tcp"`
	EnableICMP            bool    `toml:"enable_icmp"`
	EnableUDP             bool    `toml:"enable_udp"`
	EnableProtocol        bool    `toml:"enable_protocol"`
	EnableClockSkew       bool    `toml:"enable_clock_skew"`
	EnablePassive         bool    `toml:"enable_passive"`
	EnableActiveProbes    bool    `toml:"enable_active_probes"`
	ClockSkewSamples      uint32  `toml:"clock_skew_samples"`
	ConfidenceThreshold   float32 `toml:"confidence_threshold"`
	FuzzyMatchThreshold   float32 `toml:"fuzzy_match_threshold"`
	ActiveProbesTimeoutMs uint32  `toml:"active_probes_timeout_ms"`
	SeqProbesCount        uint32  `toml:"seq_probes_count"`
}

// Config is the full decoded configuration file.
type Config struct {
	Scanner     ScannerConfig       `toml:"scanner"`
	TCPConnect  TechniqueConfig     `toml:"-"`
	TCPSyn      TechniqueConfig     `toml:"-"`
	UDP         TechniqueConfig     `toml:"-"`
	Throttling  ThrottlingConfig    `toml:"throttling"`
	Detection   DetectionConfig     `toml:"detection"`
	OSFingerprint OSFingerprintConfig `toml:"os_fingerprint"`
}

// rawScanner mirrors the nested [scanner.tcp_connect|tcp_syn|udp] tables,
// which go-toml/v2 cannot unmarshal directly into sibling fields of
// ScannerConfig without a wrapper struct.
type rawScanner struct {
	ScannerConfig
	TCPConnect TechniqueConfig `toml:"tcp_connect"`
	TCPSyn     TechniqueConfig `toml:"tcp_syn"`
	UDP        TechniqueConfig `toml:"udp"`
}

type rawConfig struct {
	Scanner       rawScanner          `toml:"scanner"`
	Throttling    ThrottlingConfig    `toml:"throttling"`
	Detection     DetectionConfig     `toml:"detection"`
	OSFingerprint OSFingerprintConfig `toml:"os_fingerprint"`
}

// Warning describes an unrecognized config key, reported but not fatal.
type Warning struct {
	Key     string
	Message string
}

// Default returns built-in defaults matching the "normal" timing profile.
func Default() Config {
	return Config{
		Scanner: ScannerConfig{
			DefaultTimeoutMs:   3000,
			MaxConcurrentScans: 1000,
			InitialPPS:         200,
			MaxPPS:             1000,
			MinPPS:             50,
			AdaptiveThrottling: true,
		},
		TCPConnect: TechniqueConfig{Enabled: true, TimeoutMs: 3000, Retries: 2, RetryDelayMs: 100},
		TCPSyn:     TechniqueConfig{Enabled: false, TimeoutMs: 2000, Retries: 2, RetryDelayMs: 100},
		UDP:        TechniqueConfig{Enabled: true, TimeoutMs: 3000, Retries: 3, RetryDelayMs: 100},
		Throttling: ThrottlingConfig{
			SuccessThreshold:   0.95,
			FailureThreshold:   0.80,
			RateIncreaseFactor: 1.5,
			RateDecreaseFactor: 0.5,
		},
		Detection: DetectionConfig{
			EnableServiceDetection: true,
			BannerTimeoutMs:        5000,
			MaxBannerSize:          1024,
		},
		OSFingerprint: OSFingerprintConfig{
			EnableTCP:           true,
			EnableICMP:          true,
			EnableUDP:           true,
			EnableProtocol:      true,
			EnableClockSkew:     false,
			EnablePassive:       false,
			EnableActiveProbes:  false,
			ClockSkewSamples:    20,
			ConfidenceThreshold: 0.5,
			FuzzyMatchThreshold: 0.5,
			SeqProbesCount:      6,
		},
	}
}

// Load reads and decodes a TOML config file from path, merging it over
// Default() and returning any unknown-key warnings found along the way.
func Load(path string) (Config, []Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, nil, scanerrors.Wrap(scanerrors.KindConfig, err, "read config file %s", path)
	}
	return Parse(data)
}

// Parse decodes raw TOML bytes into a Config layered over the defaults.
func Parse(data []byte) (Config, []Warning, error) {
	cfg := Default()

	var known map[string]interface{}
	if err := toml.Unmarshal(data, &known); err != nil {
		return Config{}, nil, scanerrors.Wrap(scanerrors.KindConfig, err, "parse config")
	}

	var raw rawConfig
	raw.Scanner.ScannerConfig = cfg.Scanner
	raw.Scanner.TCPConnect = cfg.TCPConnect
	raw.Scanner.TCPSyn = cfg.TCPSyn
	raw.Scanner.UDP = cfg.UDP
	raw.Throttling = cfg.Throttling
	raw.Detection = cfg.Detection
	raw.OSFingerprint = cfg.OSFingerprint

	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, nil, scanerrors.Wrap(scanerrors.KindConfig, err, "decode config")
	}

	cfg.Scanner = raw.Scanner.ScannerConfig
	cfg.TCPConnect = raw.Scanner.TCPConnect
	cfg.TCPSyn = raw.Scanner.TCPSyn
	cfg.UDP = raw.Scanner.UDP
	cfg.Throttling = raw.Throttling
	cfg.Detection = raw.Detection
	cfg.OSFingerprint = raw.OSFingerprint

	warnings := unknownKeys(known)

	if err := cfg.Validate(); err != nil {
		return Config{}, warnings, err
	}
	return cfg, warnings, nil
}

// recognizedKeys lists every key §6 defines inside each top-level
// section (excluding the nested [scanner.tcp_connect|tcp_syn|udp]
// tables, checked separately via recognizedScannerTables/
// recognizedTechniqueKeys). unknownKeys diffs the raw decoded map
// against this schema recursively, not just by top-level section name,
// so a typo'd key inside a valid section (e.g. [scanner]\nbogus_key=1)
// is reported too.
var recognizedKeys = map[string]map[string]bool{
	"scanner": {
		"default_timeout_ms": true, "max_concurrent_scans": true, "initial_pps": true,
		"max_pps": true, "min_pps": true, "adaptive_throttling": true,
	},
	"throttling": {
		"success_threshold": true, "failure_threshold": true,
		"rate_increase_factor": true, "rate_decrease_factor": true,
	},
	"detection": {
		"enable_service_detection": true, "banner_timeout_ms": true, "max_banner_size": true,
	},
	"os_fingerprint": {
		"enable_tcp": true, "enable_icmp": true, "enable_udp": true, "enable_protocol": true,
		"enable_clock_skew": true, "enable_passive": true, "enable_active_probes": true,
		"clock_skew_samples": true, "confidence_threshold": true, "fuzzy_match_threshold": true,
		"active_probes_timeout_ms": true, "seq_probes_count": true,
	},
}

// recognizedScannerTables names the [scanner.X] nested tables; their
// own keys are checked against recognizedTechniqueKeys, not
// recognizedKeys["scanner"].
var recognizedScannerTables = map[string]bool{"tcp_connect": true, "tcp_syn": true, "udp": true}

var recognizedTechniqueKeys = map[string]bool{
	"enabled": true, "timeout_ms": true, "retries": true, "retry_delay_ms": true,
}

func unknownKeys(m map[string]interface{}) []Warning {
	var warnings []Warning
	for section, val := range m {
		allowed, ok := recognizedKeys[section]
		if !ok {
			warnings = append(warnings, Warning{Key: section, Message: fmt.Sprintf("unrecognized top-level section %q", section)})
			continue
		}
		table, ok := val.(map[string]interface{})
		if !ok {
			continue
		}
		for key, sub := range table {
			if allowed[key] {
				continue
			}
			if section == "scanner" && recognizedScannerTables[key] {
				if subTable, ok := sub.(map[string]interface{}); ok {
					for tk := range subTable {
						if !recognizedTechniqueKeys[tk] {
							warnings = append(warnings, Warning{
								Key:     fmt.Sprintf("%s.%s.%s", section, key, tk),
								Message: fmt.Sprintf("unrecognized key %q in [%s.%s]", tk, section, key),
							})
						}
					}
				}
				continue
			}
			warnings = append(warnings, Warning{
				Key:     section + "." + key,
				Message: fmt.Sprintf("unrecognized key %q in [%s]", key, section),
			})
		}
	}
	return warnings
}

// Validate checks the documented ranges from §6, returning a ConfigError
// on the first violation found.
func (c Config) Validate() error {
	if c.Throttling.SuccessThreshold <= 0 || c.Throttling.SuccessThreshold > 1 {
		return scanerrors.New(scanerrors.KindConfig, "throttling.success_threshold must be in (0,1], got %v", c.Throttling.SuccessThreshold)
	}
	if c.Throttling.FailureThreshold <= 0 || c.Throttling.FailureThreshold > 1 {
		return scanerrors.New(scanerrors.KindConfig, "throttling.failure_threshold must be in (0,1], got %v", c.Throttling.FailureThreshold)
	}
	if c.Throttling.RateIncreaseFactor <= 1 {
		return scanerrors.New(scanerrors.KindConfig, "throttling.rate_increase_factor must be > 1, got %v", c.Throttling.RateIncreaseFactor)
	}
	if c.Throttling.RateDecreaseFactor <= 0 || c.Throttling.RateDecreaseFactor >= 1 {
		return scanerrors.New(scanerrors.KindConfig, "throttling.rate_decrease_factor must be in (0,1), got %v", c.Throttling.RateDecreaseFactor)
	}
	if c.Detection.MaxBannerSize > 65536 {
		return scanerrors.New(scanerrors.KindConfig, "detection.max_banner_size must be <= 65536, got %d", c.Detection.MaxBannerSize)
	}
	if c.OSFingerprint.ClockSkewSamples < 10 || c.OSFingerprint.ClockSkewSamples > 200 {
		return scanerrors.New(scanerrors.KindConfig, "os_fingerprint.clock_skew_samples must be in [10,200], got %d", c.OSFingerprint.ClockSkewSamples)
	}
	if c.OSFingerprint.ConfidenceThreshold < 0 || c.OSFingerprint.ConfidenceThreshold > 1 {
		return scanerrors.New(scanerrors.KindConfig, "os_fingerprint.confidence_threshold must be in [0,1], got %v", c.OSFingerprint.ConfidenceThreshold)
	}
	if c.OSFingerprint.FuzzyMatchThreshold < 0 || c.OSFingerprint.FuzzyMatchThreshold > 1 {
		return scanerrors.New(scanerrors.KindConfig, "os_fingerprint.fuzzy_match_threshold must be in [0,1], got %v", c.OSFingerprint.FuzzyMatchThreshold)
	}
	return nil
}
