package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestFormatTable(t *testing.T) {
	headers := []string{"Name", "Value", "Status"}
	rows := [][]string{
		{"Item1", "100", "OK"},
		{"Item2", "200", "OK"},
	}

	result := FormatTable(headers, rows)

	for _, want := range []string{"Name", "Value", "Item1", "100", "---"} {
		if !contains(result, want) {
			t.Errorf("table output missing %q:\n%s", want, result)
		}
	}
}

func TestFormatTableEmpty(t *testing.T) {
	headers := []string{"A", "B"}
	rows := [][]string{}

	result := FormatTable(headers, rows)

	if !contains(result, "A") {
		t.Error("table should contain headers even with no data rows")
	}
}

func TestFormatTableColumnsAlignToWidestCell(t *testing.T) {
	headers := []string{"SERVICE"}
	rows := [][]string{
		{"-"},
		{"OpenSSH 9.3 (0.95)"},
	}

	result := FormatTable(headers, rows)
	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, separator, and 2 data rows, got %d lines: %q", len(lines), lines)
	}
	if len(lines[2]) != len(lines[1]) {
		t.Errorf("short row %q not padded to separator width %d", lines[2], len(lines[1]))
	}
}

func TestExitCodes(t *testing.T) {
	cases := map[int]int{
		ExitSuccess:               0,
		ExitUsageError:            1,
		ExitRuntimeError:          2,
		ExitInsufficientPrivilege: 3,
		ExitCancelled:             4,
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("exit code constant = %d, want %d", got, want)
		}
	}
}

func TestSetLoggerRedirectsPrintError(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	orig := Logger
	SetLogger(l)
	defer func() { Logger = orig }()

	PrintError("disk on fire: %s", "/dev/sda")

	if !contains(buf.String(), "disk on fire: /dev/sda") {
		t.Errorf("PrintError did not reach the configured logger, got: %q", buf.String())
	}
}

func TestSetLoggerIgnoresNil(t *testing.T) {
	orig := Logger
	defer func() { Logger = orig }()

	SetLogger(nil)
	if Logger != orig {
		t.Error("SetLogger(nil) should not replace the current logger")
	}
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
