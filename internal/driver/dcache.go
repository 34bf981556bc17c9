package driver

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"vais/internal/diag"
)

// Current schema version - increment when CachedResult format changes
const diskCacheSchemaVersion uint16 = 1

// DiskCache хранит диагностики модулей по хешу дампа и опций.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// CachedResult is what a clean re-check of an unchanged dump would produce.
type CachedResult struct {
	Schema      uint16            `msgpack:"schema"`
	Path        string            `msgpack:"path"`
	Diagnostics []diag.Diagnostic `msgpack:"diags"`
	Broken      bool              `msgpack:"broken"`
	Bodies      int               `msgpack:"bodies"`
}

// OpenDiskCache opens dir, or $XDG_CACHE_HOME/app (~/.cache/app) when dir
// is empty.
func OpenDiskCache(app, dir string) (*DiskCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, errors.Wrap(err, "locate cache directory")
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, app)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache directory %s", dir)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir is the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// CacheKey mixes the dump digest with the options that change the output.
func CacheKey(dump Digest, cfg CheckConfig) Digest {
	h := sha256.New()
	h.Write(dump[:])
	var opts [12]byte
	binary.LittleEndian.PutUint16(opts[0:], diskCacheSchemaVersion)
	binary.LittleEndian.PutUint32(opts[2:], uint32(max(cfg.MaxDiagnostics, 0))) // #nosec G115 -- validated config
	if cfg.WarningsAsErrors {
		opts[6] = 1
	}
	if cfg.SkipBorrowck {
		opts[7] = 1
	}
	h.Write(opts[:])
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

func (c *DiskCache) pathFor(key Digest) string {
	// Подкаталог "diags", чтобы проще было чистить.
	return filepath.Join(c.dir, "diags", key.String()+".mp")
}

// Put serializes and writes a result to the disk cache.
func (c *DiskCache) Put(key Digest, res *CachedResult) error {
	if c == nil {
		return nil
	}
	res.Schema = diskCacheSchemaVersion
	data, err := msgpack.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "encode cached result")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeAtomic(c.pathFor(key), data)
}

// Get reads a cached result. A missing entry or one of another schema is a
// miss, not an error.
func (c *DiskCache) Get(key Digest, out *CachedResult) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	// #nosec G304 -- path is derived from a hex digest
	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrap(err, "read cached result")
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, errors.Wrapf(err, "decode cached result %s", key)
	}
	return out.Schema == diskCacheSchemaVersion, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// тривиально: переименуем каталог и удалим
	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "drop cache")
	}
	if err := os.RemoveAll(old); err != nil {
		return errors.Wrap(err, "drop cache")
	}
	return errors.Wrap(os.MkdirAll(c.dir, 0o755), "recreate cache directory")
}
