package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vais/internal/diag"
	"vais/internal/diagfmt"
	"vais/internal/driver"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] <module.mp>...",
		Short: "Check resolved module dumps",
		Long:  "Type-check every module dump, then run ownership and borrow checking. Settings come from the nearest vais.toml or vais.yaml; flags override them.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}
	cmd.Flags().String("format", "pretty", "output format (pretty|short|json)")
	cmd.Flags().String("config", "", "config file (default: nearest vais.toml/vais.yaml)")
	cmd.Flags().Int("jobs", 0, "bodies checked in parallel per module (0 = GOMAXPROCS)")
	cmd.Flags().Int("module-jobs", 0, "modules checked in parallel (0 = GOMAXPROCS)")
	cmd.Flags().Bool("warnings-as-errors", false, "treat warnings as errors")
	cmd.Flags().Bool("skip-borrowck", false, "stop after ownership checking")
	cmd.Flags().Bool("cache", false, "reuse diagnostics of unchanged dumps")
	cmd.Flags().String("cache-dir", "", "cache directory (default: $XDG_CACHE_HOME/vais)")
	cmd.Flags().Bool("with-notes", true, "include diagnostic notes in output")
	cmd.Flags().Bool("suggest", false, "include fix suggestions in output")
	cmd.Flags().String("path-mode", "auto", "how to print paths (auto|absolute|relative|basename)")
	cmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	return cmd
}

type checkOptions struct {
	format    string
	withNotes bool
	suggest   bool
	pathMode  diagfmt.PathMode
	ui        uiMode
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadCheckConfig(cmd, args)
	if err != nil {
		return err
	}
	opts, err := readCheckOptions(cmd)
	if err != nil {
		return err
	}
	rootFlags := cmd.Root().PersistentFlags()
	quiet, err := rootFlags.GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := rootFlags.GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	colorMode, err := rootFlags.GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}

	cleanup, err := setupTracing(cmd, cfg.Trace)
	if err != nil {
		return err
	}
	defer cleanup()
	stopProf, err := startProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProf()

	checker := &driver.Checker{Config: cfg}
	if cfg.Cache.Enabled {
		cache, err := driver.OpenDiskCache("vais", cfg.Cache.Dir)
		if err != nil {
			return err
		}
		checker.Cache = cache
	}

	var results []*driver.ModuleResult
	if opts.format != "json" && !quiet && shouldUseTUI(opts.ui, len(args)) {
		results, err = runCheckWithUI(cmd.Context(), checker, args)
	} else {
		results, err = checker.CheckFiles(cmd.Context(), args)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	color := diagfmt.ColorEnabled(colorMode, stdoutFile(out))
	if err := renderResults(out, results, opts, color); err != nil {
		return err
	}
	if showTimings {
		renderTimings(cmd.ErrOrStderr(), results)
	}

	errs, warnings := driver.Summary(results)
	if !quiet && opts.format != "json" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d module(s): %d error(s), %d warning(s)\n", len(results), errs, warnings)
	}
	if errs > 0 {
		return errDiagnostics
	}
	return nil
}

// loadCheckConfig reads the config file and applies flag overrides.
func loadCheckConfig(cmd *cobra.Command, args []string) (driver.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return driver.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg driver.Config
	if path != "" {
		cfg, err = driver.ReadConfig(path)
	} else {
		cfg, err = driver.LoadConfig(filepath.Dir(args[0]))
	}
	if err != nil {
		return driver.Config{}, err
	}

	flags := cmd.Flags()
	for name, dst := range map[string]*int{
		"jobs":        &cfg.Check.Jobs,
		"module-jobs": &cfg.Check.ModuleJobs,
	} {
		if flags.Changed(name) {
			if *dst, err = flags.GetInt(name); err != nil {
				return driver.Config{}, fmt.Errorf("failed to get %s flag: %w", name, err)
			}
		}
	}
	for name, dst := range map[string]*bool{
		"warnings-as-errors": &cfg.Check.WarningsAsErrors,
		"skip-borrowck":      &cfg.Check.SkipBorrowck,
		"cache":              &cfg.Cache.Enabled,
	} {
		if flags.Changed(name) {
			if *dst, err = flags.GetBool(name); err != nil {
				return driver.Config{}, fmt.Errorf("failed to get %s flag: %w", name, err)
			}
		}
	}
	if flags.Changed("cache-dir") {
		if cfg.Cache.Dir, err = flags.GetString("cache-dir"); err != nil {
			return driver.Config{}, fmt.Errorf("failed to get cache-dir flag: %w", err)
		}
		cfg.Cache.Enabled = true
	}
	if root := cmd.Root().PersistentFlags(); root.Changed("max-diagnostics") {
		if cfg.Check.MaxDiagnostics, err = root.GetInt("max-diagnostics"); err != nil {
			return driver.Config{}, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func readCheckOptions(cmd *cobra.Command) (checkOptions, error) {
	var opts checkOptions
	flags := cmd.Flags()
	format, err := flags.GetString("format")
	if err != nil {
		return opts, fmt.Errorf("failed to get format flag: %w", err)
	}
	opts.format = strings.ToLower(format)
	switch opts.format {
	case "pretty", "short", "json":
	default:
		return opts, fmt.Errorf("unknown format %q (expected pretty|short|json)", format)
	}
	if opts.withNotes, err = flags.GetBool("with-notes"); err != nil {
		return opts, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if opts.suggest, err = flags.GetBool("suggest"); err != nil {
		return opts, fmt.Errorf("failed to get suggest flag: %w", err)
	}
	pm, err := flags.GetString("path-mode")
	if err != nil {
		return opts, fmt.Errorf("failed to get path-mode flag: %w", err)
	}
	var ok bool
	if opts.pathMode, ok = diagfmt.ParsePathMode(pm); !ok {
		return opts, fmt.Errorf("unknown path mode %q (expected auto|absolute|relative|basename)", pm)
	}
	ui, err := flags.GetString("ui")
	if err != nil {
		return opts, fmt.Errorf("failed to get ui flag: %w", err)
	}
	opts.ui, err = readUIMode(ui)
	return opts, err
}

func renderResults(w io.Writer, results []*driver.ModuleResult, opts checkOptions, color bool) error {
	switch opts.format {
	case "json":
		all := diagfmt.DiagnosticsOutput{Diagnostics: []diagfmt.DiagnosticJSON{}}
		jopts := diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         opts.pathMode,
			IncludeNotes:     opts.withNotes,
			IncludeFixes:     opts.suggest,
			IncludePreviews:  opts.suggest,
		}
		for _, r := range results {
			all.Append(diagfmt.BuildDiagnosticsOutput(r.Bag, r.Files, jopts))
		}
		return diagfmt.WriteJSON(w, all)
	case "short":
		for _, r := range results {
			if r.Bag.Len() == 0 {
				continue
			}
			if _, err := fmt.Fprintln(w, diag.FormatShort(r.Bag.Items(), r.Files, opts.withNotes)); err != nil {
				return err
			}
		}
		return nil
	}
	popts := diagfmt.PrettyOpts{
		Color:     color,
		Context:   1,
		PathMode:  opts.pathMode,
		ShowNotes: opts.withNotes,
		ShowFixes: opts.suggest,
	}
	first := true
	for _, r := range results {
		if r.Bag.Len() == 0 {
			continue
		}
		if !first {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		first = false
		if err := diagfmt.Pretty(w, r.Bag, r.Files, popts); err != nil {
			return err
		}
	}
	return nil
}

func renderTimings(w io.Writer, results []*driver.ModuleResult) {
	for _, r := range results {
		note := ""
		if r.Cached {
			note = " (cached)"
		}
		fmt.Fprintf(w, "%s%s: %.2f ms\n", r.Path, note, r.Timing.TotalMS)
		for _, p := range r.Timing.Phases {
			fmt.Fprintf(w, "  %-12s %8.2f ms", p.Name, p.DurationMS)
			if p.Note != "" {
				fmt.Fprintf(w, "  // %s", p.Note)
			}
			fmt.Fprintln(w)
		}
	}
}

func stdoutFile(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
