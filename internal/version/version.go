package version

import (
	"strings"

	"github.com/fatih/color"
)

// Version information for the vaisck CLI.
// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the checker.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var partColors = [3][]color.Attribute{
	{color.FgYellow, color.Bold},
	{color.FgGreen, color.Bold},
	{color.FgBlue, color.Bold},
}

// Colored renders Version with its major, minor and patch parts coloured.
// Anything that is not MAJOR.MINOR.PATCH[-suffix] comes back unchanged.
func Colored(enabled bool) string {
	v := strings.TrimSpace(Version)
	core, suffix, hasSuffix := strings.Cut(v, "-")
	parts := strings.Split(core, ".")
	if !enabled || len(parts) != 3 {
		return v
	}
	for i, p := range parts {
		c := color.New(partColors[i]...)
		c.EnableColor()
		parts[i] = c.Sprint(p)
	}
	out := strings.Join(parts, ".")
	if hasSuffix {
		out += "-" + suffix
	}
	return out
}
