package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vais/internal/ast"
	"vais/internal/diagfmt"
	"vais/internal/driver"
)

func writeDump(t *testing.T, dir, name string, twice bool) string {
	t.Helper()
	b := ast.NewBuilder(strings.TrimSuffix(name, ".mp") + ".vais")
	p := b.Local("p", false)
	consume := b.Fn("consume", ast.FnDecl{Params: []ast.Param{b.Param(p, b.Prim("str"))}, Body: b.Block(ast.NoExprID)})
	s := b.Local("s", false)
	stmts := []ast.StmtID{
		b.Let(s, ast.NoTypeID, b.Str("hi")),
		b.ExprStmt(b.Call(b.ItemRef(consume), b.Var(s))),
	}
	if twice {
		stmts = append(stmts, b.ExprStmt(b.Call(b.ItemRef(consume), b.Var(s))))
	}
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID, stmts...)})
	path := filepath.Join(dir, name)
	require.NoError(t, driver.WriteModule(path, b.Module(), nil))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestCheckReportsErrorsAsJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeDump(t, dir, "bad.mp", true)
	good := writeDump(t, dir, "good.mp", false)

	out, _, err := execute(t, "check", "--ui", "off", "--format", "json", bad, good)
	require.ErrorIs(t, err, errDiagnostics)

	var payload diagfmt.DiagnosticsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &payload), out)
	require.Equal(t, 1, payload.Count)
	assert.Equal(t, "OWN3001", payload.Diagnostics[0].Code)
	assert.Equal(t, "bad.vais", payload.Diagnostics[0].Location.File)
}

func TestCheckCleanModuleSucceeds(t *testing.T) {
	dir := t.TempDir()
	good := writeDump(t, dir, "good.mp", false)

	out, errOut, err := execute(t, "check", "--ui", "off", "--color", "off", good)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "1 module(s): 0 error(s), 0 warning(s)")
}

func TestCheckShortFormatWithTimings(t *testing.T) {
	dir := t.TempDir()
	bad := writeDump(t, dir, "bad.mp", true)

	out, errOut, err := execute(t, "check", "--ui", "off", "--format", "short", "--with-notes=false", "--timings", bad)
	require.ErrorIs(t, err, errDiagnostics)
	assert.True(t, strings.HasPrefix(out, "error OWN3001 bad.vais:"), out)
	assert.Contains(t, errOut, "bodies")
}

func TestCheckRejectsBadFlags(t *testing.T) {
	dir := t.TempDir()
	good := writeDump(t, dir, "good.mp", false)

	_, _, err := execute(t, "check", "--format", "xml", good)
	require.Error(t, err)
	_, _, err = execute(t, "check", "--ui", "sometimes", good)
	require.Error(t, err)
	_, _, err = execute(t, "check", "--jobs", "-2", good)
	require.Error(t, err)
	_, _, err = execute(t, "check")
	require.Error(t, err)
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, " on ": uiModeOn, "off": uiModeOff} {
		got, err := readUIMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", in)
	}
	assert.True(t, shouldUseTUI(uiModeOn, 1))
	assert.False(t, shouldUseTUI(uiModeOff, 5))
	assert.False(t, shouldUseTUI(uiModeAuto, 1))
}

func TestVersionJSON(t *testing.T) {
	out, _, err := execute(t, "version", "--format", "json", "--full")
	require.NoError(t, err)
	var payload versionPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "vaisck", payload.Tool)
	assert.NotEmpty(t, payload.Version)
	assert.Equal(t, "unknown", payload.GitCommit)
}
