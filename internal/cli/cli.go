// Package cli provides the small stdout/stderr/table-formatting
// helpers cmd/netrecon builds its output around. It does not parse
// arguments itself (that stays in cmd/netrecon, per SPEC_FULL's
// NON-GOALS carving the CLI front-end out of the core).
package cli

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Exit codes a netrecon invocation returns, per spec.md §6.
const (
	ExitSuccess               = 0
	ExitUsageError            = 1
	ExitRuntimeError          = 2
	ExitInsufficientPrivilege = 3
	ExitCancelled             = 4
)

// Logger is where PrintError/PrintWarning write, following the rest of
// the ambient stack's logrus convention instead of writing straight to
// os.Stderr. cmd/netrecon points this at the same logger it builds for
// the scan via SetLogger, so --verbose and log formatting apply to CLI
// diagnostics the same way they apply to every internal component.
var Logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger overrides the destination PrintError/PrintWarning write to.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		Logger = l
	}
}

// PrintError reports a usage or runtime error ahead of exiting.
func PrintError(format string, args ...interface{}) {
	Logger.Error(fmt.Sprintf(format, args...))
}

// PrintWarning reports a non-fatal condition, such as a config.Warning.
func PrintWarning(format string, args ...interface{}) {
	Logger.Warn(fmt.Sprintf(format, args...))
}

// PrintInfo writes one line of program output (not a diagnostic) to
// stdout, bypassing the logger's level filtering and field formatting.
func PrintInfo(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// FormatTable renders headers and rows as a column-aligned table, each
// column sized to its widest cell. Scan output needs this rather than
// a fixed-width layout: printScanResults' SERVICE column ranges from a
// bare "-" to "OpenSSH 9.3 (0.95)", and a constant-width separator
// would either truncate long entries or waste space on short ones.
func FormatTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			sb.WriteString(cell)
			sb.WriteString(strings.Repeat(" ", w-len(cell)))
			if i < len(widths)-1 {
				sb.WriteString("  ")
			}
		}
		sb.WriteString("\n")
	}

	writeRow(headers)

	total := 0
	for i, w := range widths {
		total += w
		if i < len(widths)-1 {
			total += 2
		}
	}
	sb.WriteString(strings.Repeat("-", total))
	sb.WriteString("\n")

	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}
