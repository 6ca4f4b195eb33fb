package sigdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeJSONRoundTrip(t *testing.T) {
	db := Builtin()
	data, err := db.Encode(FormatJSON)
	require.NoError(t, err)

	decoded, err := Decode(data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, len(db.Signatures), len(decoded.Signatures))
	for i := range db.Signatures {
		assert.Equal(t, db.Signatures[i].OSName, decoded.Signatures[i].OSName)
		assert.Equal(t, db.Signatures[i].ConfidenceWeight, decoded.Signatures[i].ConfidenceWeight)
	}
}

func TestEncodeDecodeYAMLRoundTrip(t *testing.T) {
	db := Builtin()
	data, err := db.Encode(FormatYAML)
	require.NoError(t, err)

	decoded, err := Decode(data, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, len(db.Signatures), len(decoded.Signatures))
}

func TestLoadStoreRoundTripToDisk(t *testing.T) {
	db := Builtin()
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "sigs.json")
	require.NoError(t, db.Store(jsonPath))
	fromJSON, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, len(db.Signatures), len(fromJSON.Signatures))

	yamlPath := filepath.Join(dir, "sigs.yaml")
	require.NoError(t, db.Store(yamlPath))
	fromYAML, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, len(db.Signatures), len(fromYAML.Signatures))
}

func TestUnknownFieldsPreservedOnRoundTrip(t *testing.T) {
	raw := []byte(`{"metadata":{"name":"t","version":"1"},"signatures":[
		{"os_name":"TestOS","os_family":"test","confidence_weight":0.5,"extra_vendor_field":"keep-me"}
	]}`)
	db, err := Decode(raw, FormatJSON)
	require.NoError(t, err)

	out, err := db.Encode(FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(out), "keep-me")
}

func TestUnknownFieldsPreservedOnYAMLRoundTrip(t *testing.T) {
	raw := []byte("metadata:\n  name: t\n  version: \"1\"\nsignatures:\n  - os_name: TestOS\n    os_family: test\n    confidence_weight: 0.5\n    extra_vendor_field: keep-me\n")
	db, err := Decode(raw, FormatYAML)
	require.NoError(t, err)

	out, err := db.Encode(FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(out), "keep-me")
}

func TestMergeDeduplicatesByNameAndVersion(t *testing.T) {
	a := &Database{Signatures: []OsSignature{{OSName: "Linux", OSVersion: "5.x", ConfidenceWeight: 0.5}}}
	b := &Database{Signatures: []OsSignature{
		{OSName: "Linux", OSVersion: "5.x", ConfidenceWeight: 0.9},
		{OSName: "Windows", OSVersion: "10", ConfidenceWeight: 0.8},
	}}
	merged := Merge(a, b)
	assert.Len(t, merged.Signatures, 2)
	for _, s := range merged.Signatures {
		if s.OSName == "Linux" {
			assert.Equal(t, 0.9, s.ConfidenceWeight, "later database should win on duplicate key")
		}
	}
}

func TestValidateFlagsMissingNameAndBadWeight(t *testing.T) {
	db := &Database{Signatures: []OsSignature{
		{OSName: "Good", OSFamily: "x", ConfidenceWeight: 0.5},
		{OSFamily: "x", ConfidenceWeight: 1.5},
	}}
	report := Validate(db)
	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 1, report.Invalid)
	assert.Len(t, report.Issues, 2)
}

func TestDetectFormatByExtension(t *testing.T) {
	assert.Equal(t, FormatYAML, detectFormat("sigs.yaml", nil))
	assert.Equal(t, FormatJSON, detectFormat("sigs.json", nil))
	assert.Equal(t, FormatJSON, detectFormat("sigs", []byte(`{"a":1}`)))
	assert.Equal(t, FormatYAML, detectFormat("sigs", []byte("a: 1")))
}
