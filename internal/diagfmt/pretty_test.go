package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"vais/internal/diag"
	"vais/internal/source"
)

func TestPrettyUnderlinesSpan(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("main.vais", []byte(mismatchSrc))
	bag := mismatchBag(fileID)

	var buf bytes.Buffer
	if err := Pretty(&buf, bag, fs, PrettyOpts{Context: 1, ShowNotes: true, ShowFixes: true}); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"error[TYP1001]: mismatched types: expected `i64`, found `str`",
		" --> main.vais:2:18",
		"  |",
		"1 | fn main() {",
		`2 |     let x: i64 = "s";`,
		"  |                  ^^^",
		"  = note: main.vais:2:12: expected due to this",
		"  = help: use an integer literal",
		"2 |     let x: i64 = 0;",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
}

// TestPathModes проверяет различные режимы форматирования путей
func TestPathModes(t *testing.T) {
	fs := source.NewFileSet()
	fileID := fs.AddVirtual("/home/user/project/src/test.vais", []byte("let x = 1\n"))
	bag := diag.NewBag(10)
	bag.Add(diag.New(diag.SevWarning, diag.UnreachablePattern, source.Span{File: fileID, Start: 4, End: 5}, "unreachable pattern"))

	tests := []struct {
		name     string
		mode     PathMode
		contains string
	}{
		{name: "Absolute path", mode: PathModeAbsolute, contains: "/home/user/project/src/test.vais:1:5"},
		{name: "Relative path", mode: PathModeRelative, contains: " src/test.vais:1:5"},
		{name: "Basename only", mode: PathModeBasename, contains: " test.vais:1:5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode, BaseDir: "/home/user/project"})
			if err != nil {
				t.Fatal(err)
			}
			output := buf.String()
			if !strings.Contains(output, tt.contains) {
				t.Errorf("Expected output to contain %q, got:\n%s", tt.contains, output)
			}
			if !strings.HasPrefix(output, "warning[PAT5002]") {
				t.Errorf("Expected warning header, got:\n%s", output)
			}
		})
	}
}

func TestPrettyCaretAccountsForWideRunes(t *testing.T) {
	fs := source.NewFileSet()
	src := "let 名前 = x\n"
	fileID := fs.AddVirtual("wide.vais", []byte(src))
	at := uint32(strings.Index(src, "x")) // #nosec G115 -- short literal
	bag := diag.NewBag(1)
	bag.Add(diag.NewError(diag.CannotInfer, source.Span{File: fileID, Start: at, End: at + 1}, "type annotations needed"))

	var buf bytes.Buffer
	if err := Pretty(&buf, bag, fs, PrettyOpts{}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(buf.String(), "\n")
	// "let " + two double-width runes + " = " -> column 11 on screen
	if want := "  | " + strings.Repeat(" ", 11) + "^"; lines[4] != want {
		t.Errorf("caret line = %q, want %q", lines[4], want)
	}
}

func TestPrettyWithoutSource(t *testing.T) {
	bag := diag.NewBag(1)
	bag.Add(diag.NewError(diag.IOLoadFileError, source.Span{}, "failed to read dump"))
	var buf bytes.Buffer
	if err := Pretty(&buf, bag, nil, PrettyOpts{Color: true}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "IO6001") || !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("Expected a coloured header only, got %q", buf.String())
	}
}
