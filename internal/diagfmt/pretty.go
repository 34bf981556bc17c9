package diagfmt

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"vais/internal/diag"
	"vais/internal/source"
)

const tabWidth = 4

// ColorEnabled resolves a --color value ("auto", "on", "off") for out.
func ColorEnabled(mode string, out *os.File) bool {
	switch mode {
	case "on", "always":
		return true
	case "off", "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" || out == nil {
		return false
	}
	fd := out.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type palette struct {
	err, warn, info *color.Color
	note, help      *color.Color
	gutter, bold    *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		err:    mk(color.FgRed, color.Bold),
		warn:   mk(color.FgYellow, color.Bold),
		info:   mk(color.FgCyan, color.Bold),
		note:   mk(color.FgCyan),
		help:   mk(color.FgGreen),
		gutter: mk(color.FgBlue, color.Bold),
		bold:   mk(color.Bold),
	}
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	}
	return p.info
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее). Для каждой
// диагностики печатает заголовок, строку исходника с подчёркиванием по
// Span, затем заметки и исправления.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) error {
	if bag == nil {
		return nil
	}
	r := prettyRenderer{fs: fs, opts: opts, pal: newPalette(opts.Color)}
	for i, d := range bag.Items() {
		if i > 0 {
			r.sb.WriteByte('\n')
		}
		r.diagnostic(d)
	}
	_, err := io.WriteString(w, r.sb.String())
	return err
}

type prettyRenderer struct {
	sb   strings.Builder
	fs   *source.FileSet
	opts PrettyOpts
	pal  palette
}

func (r *prettyRenderer) diagnostic(d diag.Diagnostic) {
	sev := r.pal.severity(d.Severity)
	label := strings.ToLower(d.Severity.String())
	r.sb.WriteString(sev.Sprintf("%s[%s]", label, d.Code.ID()))
	r.sb.WriteString(r.pal.bold.Sprint(": " + d.Message))
	r.sb.WriteByte('\n')

	f := r.file(d.Primary)
	if f == nil {
		return
	}
	start, _ := r.fs.Resolve(d.Primary)
	gutter := len(strconv.FormatUint(uint64(start.Line), 10))
	pad := strings.Repeat(" ", gutter)
	fmt.Fprintf(&r.sb, "%s%s %s\n", pad, r.pal.gutter.Sprint("-->"), r.location(f, start))
	r.sb.WriteString(pad + " " + r.pal.gutter.Sprint("|") + "\n")
	r.snippet(f, d.Primary, gutter, sev, '^')

	if r.opts.ShowNotes {
		for _, n := range d.Notes {
			r.note(n, gutter)
		}
	}
	if r.opts.ShowFixes {
		for _, fx := range d.Fixes {
			r.fix(fx, gutter)
		}
	}
}

func (r *prettyRenderer) file(sp source.Span) *source.File {
	if r.fs == nil {
		return nil
	}
	return r.fs.Get(sp.File)
}

func (r *prettyRenderer) location(f *source.File, at source.LineCol) string {
	return fmt.Sprintf("%s:%d:%d", formatPath(f.Path, r.opts.PathMode, r.opts.BaseDir), at.Line, at.Col)
}

// snippet prints the context lines and the line holding sp.Start with an
// underline below the spanned part of it.
func (r *prettyRenderer) snippet(f *source.File, sp source.Span, gutter int, c *color.Color, mark byte) {
	start, end := r.fs.Resolve(sp)
	text := f.GetLine(start.Line)
	if text == "" && len(f.Content) == 0 {
		return
	}
	first := start.Line
	if ctx := uint32(max(r.opts.Context, 0)); first > ctx { // #nosec G115 -- non-negative
		first -= ctx
	} else {
		first = 1
	}
	for ln := first; ln < start.Line; ln++ {
		r.line(ln, f.GetLine(ln), gutter)
	}
	r.line(start.Line, text, gutter)

	col := int(start.Col) - 1
	col = min(max(col, 0), len(text))
	stop := len(text)
	if end.Line == start.Line {
		stop = min(max(int(end.Col)-1, col), len(text))
	}
	lead := displayWidth(text[:col])
	width := max(displayWidth(text[col:stop]), 1)
	r.sb.WriteString(strings.Repeat(" ", gutter) + " " + r.pal.gutter.Sprint("|") + " ")
	r.sb.WriteString(strings.Repeat(" ", lead))
	r.sb.WriteString(c.Sprint(strings.Repeat(string(mark), width)))
	r.sb.WriteByte('\n')
}

func (r *prettyRenderer) line(n uint32, text string, gutter int) {
	num := fmt.Sprintf("%*d", gutter, n)
	r.sb.WriteString(r.pal.gutter.Sprint(num + " |"))
	if text != "" {
		r.sb.WriteString(" " + expandTabs(text))
	}
	r.sb.WriteByte('\n')
}

func (r *prettyRenderer) note(n diag.Note, gutter int) {
	pad := strings.Repeat(" ", gutter)
	f := r.file(n.Span)
	if f == nil || n.Span.Empty() {
		fmt.Fprintf(&r.sb, "%s %s %s\n", pad, r.pal.gutter.Sprint("="), r.pal.note.Sprint("note: ")+n.Msg)
		return
	}
	at, _ := r.fs.Resolve(n.Span)
	fmt.Fprintf(&r.sb, "%s %s %s%s: %s\n", pad, r.pal.gutter.Sprint("="), r.pal.note.Sprint("note: "),
		r.location(f, at), n.Msg)
}

func (r *prettyRenderer) fix(fx diag.Fix, gutter int) {
	pad := strings.Repeat(" ", gutter)
	fmt.Fprintf(&r.sb, "%s %s %s\n", pad, r.pal.gutter.Sprint("="), r.pal.help.Sprint("help: ")+fx.Title)
	for _, e := range fx.Edits {
		r.snippetEdit(e, gutter)
	}
}

// snippetEdit shows the line of an edit with the new text spliced in.
func (r *prettyRenderer) snippetEdit(e diag.FixEdit, gutter int) {
	preview, err := buildFixEditPreview(r.fs, e)
	if err != nil {
		return
	}
	start, _ := r.fs.Resolve(e.Span)
	for i, l := range preview.after {
		r.line(start.Line+uint32(i), l, gutter) // #nosec G115 -- preview is a few lines
	}
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

func displayWidth(s string) int {
	return runewidth.StringWidth(expandTabs(s))
}
