package diag

import (
	"fmt"
	"strings"

	"vais/internal/source"
)

// FormatShort renders one line per diagnostic (and per note when
// includeNotes is set) as "severity CODE path:line:col message".
// The output is stable for a sorted bag and is used for golden tests
// and the CLI short format.
func FormatShort(diags []Diagnostic, fs *source.FileSet, includeNotes bool) string {
	var b strings.Builder
	for _, d := range diags {
		writeShort(&b, strings.ToLower(d.Severity.String()), d.Code, d.Primary, d.Message, fs)
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			writeShort(&b, "note", d.Code, n.Span, n.Msg, fs)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeShort(b *strings.Builder, label string, code Code, sp source.Span, msg string, fs *source.FileSet) {
	path := fmt.Sprintf("file%d", sp.File)
	line, col := uint32(0), uint32(0)
	if fs != nil {
		if f := fs.Get(sp.File); f != nil {
			path = f.Path
			start, _ := fs.Resolve(sp)
			line, col = start.Line, start.Col
		}
	}
	msg = strings.ReplaceAll(msg, "\n", " ")
	fmt.Fprintf(b, "%s %s %s:%d:%d %s\n", label, code.ID(), path, line, col, msg)
}
