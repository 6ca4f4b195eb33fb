package sigdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netrecon/netrecon/internal/scanerrors"
)

// wireFile is the on-disk shape from §6: {"metadata": {...}, "signatures": [...]}.
// Both JSON and YAML tags point at the same keys so one struct serves
// both codecs (the pack's repos do the same: a single config struct
// tagged for both `toml` and `yaml` where the schema is shared).
type wireFile struct {
	Metadata   Metadata      `json:"metadata" yaml:"metadata"`
	Signatures []OsSignature `json:"signatures" yaml:"signatures"`
}

// MarshalJSON preserves unrecognized fields by merging known and extra
// keys at encode time (§6 "Unknown fields are preserved for round-trip").
func (s OsSignature) MarshalJSON() ([]byte, error) {
	type alias OsSignature
	base, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return base, nil
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields normally and stashes anything
// else in extra so Store() round-trips it unchanged.
func (s *OsSignature) UnmarshalJSON(data []byte) error {
	type alias OsSignature
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = OsSignature(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if sigKnownFields[k] {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]interface{})
		}
		var val interface{}
		if err := json.Unmarshal(v, &val); err == nil {
			s.extra[k] = val
		}
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON's unknown-field preservation for the
// YAML codec path, so a signature file round-trips through Store/Load
// the same way regardless of which format it was written in.
func (s OsSignature) MarshalYAML() (interface{}, error) {
	type alias OsSignature
	if len(s.extra) == 0 {
		return alias(s), nil
	}
	base, err := yaml.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	var merged map[string]interface{}
	if err := yaml.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return merged, nil
}

// UnmarshalYAML mirrors UnmarshalJSON: decode the known fields via the
// struct's yaml tags, then stash anything else in extra.
func (s *OsSignature) UnmarshalYAML(value *yaml.Node) error {
	type alias OsSignature
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*s = OsSignature(a)

	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for k, v := range raw {
		if sigKnownFields[k] {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]interface{})
		}
		var val interface{}
		if err := v.Decode(&val); err == nil {
			s.extra[k] = val
		}
	}
	return nil
}

// sigKnownFields is the set of wire keys UnmarshalJSON/UnmarshalYAML
// both decode via struct tags; everything else is preserved in extra.
var sigKnownFields = map[string]bool{
	"os_name": true, "os_version": true, "os_family": true,
	"tcp_signature": true, "icmp_signature": true, "udp_signature": true,
	"protocol_hints": true, "clock_freq_class": true, "confidence_weight": true,
}

// Format names the on-disk signature-file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// detectFormat auto-detects by extension first, then content sniff
// (§6 "Loader auto-detects by extension or content sniff").
func detectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads a Database from a file path, auto-detecting JSON vs YAML.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scanerrors.Wrap(scanerrors.KindConfig, err, "read signature database %s", path)
	}
	return Decode(data, detectFormat(path, data))
}

// Decode parses raw bytes in the given Format into a Database.
func Decode(data []byte, format Format) (*Database, error) {
	var wf wireFile
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &wf)
	case FormatYAML:
		err = yaml.Unmarshal(data, &wf)
	default:
		return nil, scanerrors.New(scanerrors.KindConfig, "unknown signature database format %q", format)
	}
	if err != nil {
		return nil, scanerrors.Wrap(scanerrors.KindConfig, err, "decode signature database")
	}
	db := &Database{Metadata: wf.Metadata, Signatures: wf.Signatures}
	db.Metadata.SignatureCount = len(db.Signatures)
	return db, nil
}

// Store writes a Database to path, choosing format by extension
// (defaulting to JSON).
func (db *Database) Store(path string) error {
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	data, err := db.Encode(format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Encode serializes the Database in the given Format.
func (db *Database) Encode(format Format) ([]byte, error) {
	db.Metadata.SignatureCount = len(db.Signatures)
	wf := wireFile{Metadata: db.Metadata, Signatures: db.Signatures}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(wf, "", "  ")
	case FormatYAML:
		return yaml.Marshal(wf)
	default:
		return nil, scanerrors.New(scanerrors.KindConfig, "unknown signature database format %q", format)
	}
}

// WriteTo implements io.WriterTo for JSON encoding, convenient for
// streaming a Database to a response writer or in-memory buffer.
func (db *Database) WriteTo(w io.Writer) (int64, error) {
	data, err := db.Encode(FormatJSON)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func sigKey(s OsSignature) string {
	return s.OSName + "\x00" + s.OSVersion
}

// Merge deduplicates signatures across every db by (os_name,
// os_version), later databases winning ties, and returns one combined
// Database. The combined Metadata.Name summarizes the sources.
func Merge(dbs ...*Database) *Database {
	seen := make(map[string]int)
	var out []OsSignature
	for _, db := range dbs {
		if db == nil {
			continue
		}
		for _, sig := range db.Signatures {
			key := sigKey(sig)
			if idx, ok := seen[key]; ok {
				out[idx] = sig
				continue
			}
			seen[key] = len(out)
			out = append(out, sig)
		}
	}
	merged := &Database{
		Metadata: Metadata{
			Name:           "merged",
			Version:        "1.0",
			SignatureCount: len(out),
		},
		Signatures: out,
	}
	return merged
}

// Validate checks every signature for the invariants §6/§7's
// MalformedSignature kind cares about: missing os_name, contradictory
// ranges, out-of-range confidence weights.
func Validate(db *Database) ValidationReport {
	var report ValidationReport
	for i, sig := range db.Signatures {
		var issues []string
		if sig.OSName == "" {
			issues = append(issues, "missing os_name")
		}
		if sig.ConfidenceWeight < 0 || sig.ConfidenceWeight > 1 {
			issues = append(issues, fmt.Sprintf("confidence_weight %v out of [0,1]", sig.ConfidenceWeight))
		}
		if sig.TCP != nil {
			if sig.TCP.TTLRange[0] > sig.TCP.TTLRange[1] {
				issues = append(issues, "tcp_signature.ttl_range is inverted")
			}
			if sig.TCP.WindowSizeRange[0] > sig.TCP.WindowSizeRange[1] {
				issues = append(issues, "tcp_signature.window_size_range is inverted")
			}
		}
		if len(issues) == 0 {
			report.Valid++
			continue
		}
		report.Invalid++
		for _, msg := range issues {
			report.Issues = append(report.Issues, ValidationIssue{Index: i, OSName: sig.OSName, Message: msg})
		}
	}
	return report
}
