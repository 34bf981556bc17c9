package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vais/internal/prof"
)

// startProfiling starts the profiles requested by the root flags.
func startProfiling(cmd *cobra.Command) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	var cfg prof.Config
	for flag, dst := range map[string]*string{
		"cpuprofile":    &cfg.CPU,
		"memprofile":    &cfg.Mem,
		"runtime-trace": &cfg.Trace,
	} {
		v, err := flags.GetString(flag)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*dst = v
	}
	if !cfg.Enabled() {
		return func() {}, nil
	}
	s, err := prof.Start(cfg)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := s.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
	}, nil
}
