package driver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vais/internal/ast"
	"vais/internal/diag"
)

// moveProgram passes the same string to consume twice.
func moveProgram(path string) *ast.Builder {
	b := ast.NewBuilder(path)
	p := b.Local("p", false)
	consume := b.Fn("consume", ast.FnDecl{Params: []ast.Param{b.Param(p, b.Prim("str"))}, Body: b.Block(ast.NoExprID)})
	s := b.Local("s", false)
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(s, ast.NoTypeID, b.Str("hi")),
		b.ExprStmt(b.Call(b.ItemRef(consume), b.Var(s))),
		b.ExprStmt(b.Call(b.ItemRef(consume), b.Var(s))),
	)})
	return b
}

func cleanProgram(path string) *ast.Builder {
	b := ast.NewBuilder(path)
	x := b.Local("x", false)
	b.Fn("main", ast.FnDecl{Body: b.Block(ast.NoExprID,
		b.Let(x, b.Prim("i64"), b.Int("1")),
	)})
	return b
}

func dumpTo(t *testing.T, dir, name string, b *ast.Builder) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, WriteModule(path, b.Module(), []byte("fn main() {}\n")))
	return path
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) OnEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) final(module string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Module == module {
			return s.events[i], true
		}
	}
	return Event{}, false
}

func TestDumpRoundTripKeepsNames(t *testing.T) {
	b := moveProgram("move.vais")
	data, err := EncodeModule(b.Module(), []byte("text"))
	require.NoError(t, err)

	lm, err := DecodeModule("move.vais.mp", data)
	require.NoError(t, err)
	_, ok := lm.Module.FindItem("consume")
	assert.True(t, ok)
	assert.Equal(t, "move.vais", lm.Files.Get(0).Path)
	assert.Equal(t, []byte("text"), lm.Files.Get(0).Content)
	assert.NotEqual(t, Digest{}, lm.Digest)
}

func TestDumpRejectsForeignFile(t *testing.T) {
	b := ast.NewBuilderInFile("other.vais", 3)
	_, err := EncodeModule(b.Module(), nil)
	require.Error(t, err)

	_, err = DecodeModule("junk.mp", []byte{0xc1, 0x00})
	require.Error(t, err)
}

func TestCheckFilesReportsPerModule(t *testing.T) {
	dir := t.TempDir()
	bad := dumpTo(t, dir, "move.mp", moveProgram("move.vais"))
	good := dumpTo(t, dir, "clean.mp", cleanProgram("clean.vais"))
	missing := filepath.Join(dir, "missing.mp")

	sink := &recordingSink{}
	c := &Checker{Config: DefaultConfig(), Sink: sink}
	results, err := c.CheckFiles(context.Background(), []string{bad, good, missing})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "move.vais", results[0].Path)
	assert.Equal(t, []diag.Code{diag.UseAfterMove}, results[0].Bag.Codes())
	require.NotNil(t, results[0].Typed)

	assert.False(t, results[1].HasErrors())
	assert.NotEmpty(t, results[1].Timing.Phases)

	assert.Equal(t, []diag.Code{diag.IOLoadFileError}, results[2].Bag.Codes())
	assert.Nil(t, results[2].Typed)

	errs, warnings := Summary(results)
	assert.Equal(t, 2, errs)
	assert.Zero(t, warnings)

	ev, ok := sink.final(bad)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, ev.Status)
	ev, ok = sink.final(good)
	require.True(t, ok)
	assert.Equal(t, StatusDone, ev.Status)
	ev, ok = sink.final(missing)
	require.True(t, ok)
	assert.Equal(t, StatusError, ev.Status)
	assert.Error(t, ev.Err)
}

func TestCachedResultMatchesFreshCheck(t *testing.T) {
	dir := t.TempDir()
	path := dumpTo(t, dir, "move.mp", moveProgram("move.vais"))
	cache, err := OpenDiskCache("vais", filepath.Join(dir, "cache"))
	require.NoError(t, err)

	c := &Checker{Config: DefaultConfig(), Cache: cache}
	first, err := c.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.False(t, first[0].Cached)

	second, err := c.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.True(t, second[0].Cached)
	assert.Nil(t, second[0].Typed)
	assert.Equal(t,
		diag.FormatShort(first[0].Bag.Items(), first[0].Files, true),
		diag.FormatShort(second[0].Bag.Items(), second[0].Files, true))

	// другие опции дают другой ключ
	c.Config.Check.SkipBorrowck = true
	third, err := c.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.False(t, third[0].Cached)

	require.NoError(t, cache.DropAll())
	entries, err := os.ReadDir(cache.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWarningsAsErrorsChangesCacheKey(t *testing.T) {
	var d Digest
	d[0] = 1
	cfg := DefaultConfig().Check
	strict := cfg
	strict.WarningsAsErrors = true
	assert.NotEqual(t, CacheKey(d, cfg), CacheKey(d, strict))
	assert.Equal(t, CacheKey(d, cfg), CacheKey(d, cfg))
}

func TestCheckFilesStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := dumpTo(t, dir, "clean.mp", cleanProgram("clean.vais"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CheckFiles(ctx, []string{path}, DefaultConfig())
	require.ErrorIs(t, err, context.Canceled)
}
