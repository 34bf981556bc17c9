package driver

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"vais/internal/diag"
	"vais/internal/observ"
	"vais/internal/sema"
	"vais/internal/source"
	"vais/internal/trace"
)

// ModuleResult is the outcome of checking one dump.
type ModuleResult struct {
	Path  string
	Files *source.FileSet
	Bag   *diag.Bag
	// Typed is nil when the module failed to load or came from the cache.
	Typed  *sema.TypedModule
	Cached bool
	Digest Digest
	Timing observ.Report
}

// HasErrors reports whether the module produced any error diagnostic.
func (r *ModuleResult) HasErrors() bool {
	return r != nil && r.Bag != nil && r.Bag.HasErrors()
}

// Checker checks dumps with one configuration. Cache and Sink are optional.
type Checker struct {
	Config Config
	Cache  *DiskCache
	Sink   ProgressSink
}

// CheckFiles checks every dump in paths. Results come back in input
// order; a dump that cannot be read gets an IOLoadFileError diagnostic
// instead of failing the whole run. The error is non-nil only when ctx is
// cancelled.
func CheckFiles(ctx context.Context, paths []string, cfg Config) ([]*ModuleResult, error) {
	c := &Checker{Config: cfg}
	if cfg.Cache.Enabled {
		cache, err := OpenDiskCache("vais", cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		c.Cache = cache
	}
	return c.CheckFiles(ctx, paths)
}

func (c *Checker) CheckFiles(ctx context.Context, paths []string) ([]*ModuleResult, error) {
	sink := c.Sink
	if sink == nil {
		sink = nopSink{}
	}
	jobs := c.Config.Check.ModuleJobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	tr := trace.FromContext(ctx)
	root := trace.Begin(tr, trace.ScopeDriver, "check", trace.CurrentSpan(ctx))
	root.WithExtra("modules", fmt.Sprint(len(paths)))
	ctx = trace.WithSpan(ctx, root)

	for _, p := range paths {
		sink.OnEvent(Event{Module: p, Stage: StageLoad, Status: StatusQueued})
	}

	results := make([]*ModuleResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.checkOne(gctx, p, sink)
			return nil
		})
	}
	err := g.Wait()
	root.End("")
	return results, err
}

func (c *Checker) checkOne(ctx context.Context, path string, sink ProgressSink) *ModuleResult {
	start := time.Now()
	timer := observ.NewTimer()

	sink.OnEvent(Event{Module: path, Stage: StageLoad, Status: StatusWorking})
	done := timer.Track("load")
	lm, err := LoadModule(path)
	done("")
	if err != nil {
		sink.OnEvent(Event{Module: path, Stage: StageLoad, Status: StatusError, Err: err, Elapsed: time.Since(start)})
		return loadFailure(path, err, timer)
	}

	res := &ModuleResult{
		Path:   lm.Files.Get(0).Path,
		Files:  lm.Files,
		Digest: lm.Digest,
	}
	key := CacheKey(lm.Digest, c.Config.Check)
	if c.Cache != nil {
		sink.OnEvent(Event{Module: path, Stage: StageCache, Status: StatusWorking})
		done = timer.Track("cache")
		var cached CachedResult
		hit, err := c.Cache.Get(key, &cached)
		done(fmt.Sprintf("hit=%t", hit))
		if err == nil && hit {
			res.Bag = diag.NewBag(c.Config.Check.MaxDiagnostics)
			for _, d := range cached.Diagnostics {
				res.Bag.Add(d)
			}
			res.Cached = true
			res.Timing = timer.Report()
			sink.OnEvent(Event{Module: path, Stage: StageCheck, Status: finalStatus(res), Elapsed: time.Since(start), Cached: true})
			return res
		}
	}

	sink.OnEvent(Event{Module: path, Stage: StageCheck, Status: StatusWorking})
	typed, bag := sema.CheckModule(ctx, lm.Module, sema.Options{
		Jobs:           c.Config.Check.Jobs,
		MaxDiagnostics: c.Config.Check.MaxDiagnostics,
		SkipBorrowck:   c.Config.Check.SkipBorrowck,
		Timer:          timer,
	})
	if c.Config.Check.WarningsAsErrors {
		bag.Promote()
	}
	res.Typed = typed
	res.Bag = bag
	res.Timing = timer.Report()

	if c.Cache != nil && ctx.Err() == nil {
		err := c.Cache.Put(key, &CachedResult{
			Path:        res.Path,
			Diagnostics: bag.Items(),
			Broken:      bag.HasErrors(),
			Bodies:      len(typed.Bodies),
		})
		if err != nil {
			diag.ReportWarning(diag.BagReporter{Bag: bag}, diag.IOCacheError, source.Span{},
				fmt.Sprintf("failed to store diagnostics in cache: %v", err)).Emit()
		}
	}
	sink.OnEvent(Event{Module: path, Stage: StageCheck, Status: finalStatus(res), Elapsed: time.Since(start)})
	return res
}

func loadFailure(path string, err error, timer *observ.Timer) *ModuleResult {
	files := source.NewFileSet()
	files.AddVirtual(path, nil)
	bag := diag.NewBag(1)
	diag.ReportError(diag.BagReporter{Bag: bag}, diag.IOLoadFileError, source.Span{}, err.Error()).Emit()
	return &ModuleResult{
		Path:   path,
		Files:  files,
		Bag:    bag,
		Timing: timer.Report(),
	}
}

func finalStatus(r *ModuleResult) Status {
	if r.HasErrors() {
		return StatusFailed
	}
	return StatusDone
}

// Summary counts errors and warnings over results.
func Summary(results []*ModuleResult) (errs, warnings int) {
	for _, r := range results {
		if r == nil || r.Bag == nil {
			continue
		}
		for _, d := range r.Bag.Items() {
			switch d.Severity {
			case diag.SevError:
				errs++
			case diag.SevWarning:
				warnings++
			}
		}
	}
	return errs, warnings
}
