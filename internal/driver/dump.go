package driver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"vais/internal/ast"
	"vais/internal/source"
)

// Current schema version - increment when the Dump layout changes.
const dumpSchemaVersion uint16 = 1

// Digest identifies dump contents.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Dump is the on-disk form of a resolved module, as written by a frontend.
// Every span in it points into file 0, whose text is Source (or the file
// at Path when Source is empty).
type Dump struct {
	Schema  uint16      `msgpack:"schema"`
	Path    string      `msgpack:"path"`
	Source  []byte      `msgpack:"source,omitempty"`
	Strings []string    `msgpack:"strings"`
	Module  *ast.Module `msgpack:"module"`
}

// LoadedModule is a decoded dump plus the file set its spans point into.
type LoadedModule struct {
	Module *ast.Module
	Files  *source.FileSet
	Digest Digest
}

// EncodeModule serializes mod with its string table. src may be nil.
func EncodeModule(mod *ast.Module, src []byte) ([]byte, error) {
	if mod == nil {
		return nil, errors.New("nil module")
	}
	if mod.File != 0 {
		return nil, errors.Errorf("%s: dumped spans must point into file 0, got file %d", mod.Path, mod.File)
	}
	d := Dump{
		Schema: dumpSchemaVersion,
		Path:   mod.Path,
		Source: src,
		Module: mod,
	}
	if mod.Names != nil {
		d.Strings = mod.Names.Snapshot()
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&d); err != nil {
		return nil, errors.Wrapf(err, "%s: encode", mod.Path)
	}
	return buf.Bytes(), nil
}

// WriteModule writes a dump of mod to path, replacing it atomically.
func WriteModule(path string, mod *ast.Module, src []byte) error {
	data, err := EncodeModule(mod, src)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// DecodeModule rebuilds a module from dump bytes. name is used in errors
// and as the file path when the dump does not carry one.
func DecodeModule(name string, data []byte) (*LoadedModule, error) {
	var d Dump
	if err := msgpack.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrapf(err, "%s: malformed dump", name)
	}
	if d.Schema != dumpSchemaVersion {
		return nil, errors.Errorf("%s: dump schema %d, want %d", name, d.Schema, dumpSchemaVersion)
	}
	if d.Module == nil {
		return nil, errors.Errorf("%s: dump has no module", name)
	}
	mod := d.Module
	mod.Names = source.Restore(d.Strings)
	mod.File = 0
	ensureArenas(mod)

	path := d.Path
	if path == "" {
		path = name
	}
	src := d.Source
	if len(src) == 0 && d.Path != "" {
		// best effort: без текста диагностики останутся без превью
		if b, err := os.ReadFile(resolveNear(name, d.Path)); err == nil {
			src = b
		}
	}
	files := source.NewFileSet()
	files.Add(path, src, 0)
	return &LoadedModule{
		Module: mod,
		Files:  files,
		Digest: sha256.Sum256(data),
	}, nil
}

// LoadModule reads and decodes a dump file.
func LoadModule(path string) (*LoadedModule, error) {
	// #nosec G304 -- path is provided by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read dump")
	}
	return DecodeModule(path, data)
}

// ensureArenas replaces arenas an old or hand-written dump left out.
func ensureArenas(m *ast.Module) {
	if m.Items == nil {
		m.Items = ast.NewArena[ast.Item](0)
	}
	if m.Exprs == nil {
		m.Exprs = ast.NewArena[ast.Expr](0)
	}
	if m.Stmts == nil {
		m.Stmts = ast.NewArena[ast.Stmt](0)
	}
	if m.Pats == nil {
		m.Pats = ast.NewArena[ast.Pattern](0)
	}
	if m.Types == nil {
		m.Types = ast.NewArena[ast.TypeExpr](0)
	}
	if m.Locals == nil {
		m.Locals = ast.NewArena[ast.Local](0)
	}
}

// resolveNear resolves a relative source path against the dump's directory.
func resolveNear(dumpPath, srcPath string) string {
	if filepath.IsAbs(srcPath) {
		return srcPath
	}
	return filepath.Join(filepath.Dir(dumpPath), srcPath)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmp := f.Name()
	defer func() {
		// после успешного Rename файла уже нет
		_ = os.Remove(tmp)
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	// Атомарная замена
	return errors.Wrapf(os.Rename(tmp, path), "rename to %s", path)
}
