package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vais/internal/driver"
	"vais/internal/trace"
)

// setupTracing builds a tracer from the config's [trace] table overridden
// by the trace flags and stores it in the command context. The returned
// cleanup flushes and closes it.
func setupTracing(cmd *cobra.Command, cfg driver.TraceConfig) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	for flag, dst := range map[string]*string{
		"trace":        &cfg.Output,
		"trace-level":  &cfg.Level,
		"trace-mode":   &cfg.Mode,
		"trace-format": &cfg.Format,
	} {
		if !flags.Changed(flag) {
			continue
		}
		v, err := flags.GetString(flag)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*dst = v
	}
	// --trace без уровня включает фазы
	if flags.Changed("trace") && !flags.Changed("trace-level") && (cfg.Level == "" || cfg.Level == "off") {
		cfg.Level = "phase"
	}
	ringSize, err := flags.GetInt("trace-ring-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}

	tc, err := driver.Config{Trace: cfg}.TracerConfig()
	if err != nil {
		return nil, err
	}
	tc.RingSize = ringSize
	if tc.Level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}
	if tc.OutputPath == "" {
		tc.OutputPath = "-"
	}
	tracer, err := trace.New(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return cleanup, nil
}
