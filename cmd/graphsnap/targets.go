package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/v0xg/graphsnap/internal/config"
)

// resolveTarget builds the target for a single run. Later sources win:
// defaults, then the preset or config target, then explicitly set flags and
// the url argument.
func resolveTarget(cmd *cobra.Command, args []string, cfg config.Config) (config.Target, error) {
	if presetName != "" && targetName != "" {
		return config.Target{}, fmt.Errorf("--preset and --target are mutually exclusive")
	}

	var target config.Target
	switch {
	case targetName != "":
		t, err := cfg.Target(targetName)
		if err != nil {
			return config.Target{}, err
		}
		target = t
	case presetName != "" || (len(args) == 0 && !cmd.Flags().Changed("serve")):
		name := presetName
		if name == "" {
			name = config.DefaultPreset
		}
		p, err := config.LookupPreset(name)
		if err != nil {
			return config.Target{}, err
		}
		t, err := p.Target()
		if err != nil {
			return config.Target{}, err
		}
		target = t
	default:
		target = config.Target{Name: "cli"}
	}

	overrides, err := flagOverrides(cmd)
	if err != nil {
		return config.Target{}, err
	}
	if len(args) == 1 {
		u, err := targetURL(args[0], overrides.Serve != "" || target.Serve != "")
		if err != nil {
			return config.Target{}, err
		}
		overrides.URL = u
	}
	target.Merge(overrides)
	target.ApplyDefaults()

	if err := target.Validate(); err != nil {
		return config.Target{}, err
	}
	return target, nil
}

// flagOverrides collects the target fields set explicitly on the command line.
func flagOverrides(cmd *cobra.Command) (config.Target, error) {
	f := cmd.Flags()
	var o config.Target
	if f.Changed("selector") {
		o.Selector = selector
	}
	if f.Changed("output") {
		o.Output = output
	}
	if f.Changed("width") {
		if width <= 0 {
			return o, fmt.Errorf("--width must be positive")
		}
		o.Viewport.Width = width
	}
	if f.Changed("height") {
		if height <= 0 {
			return o, fmt.Errorf("--height must be positive")
		}
		o.Viewport.Height = height
	}
	if f.Changed("nav-timeout") {
		o.NavigationTimeout = navTimeout
	}
	if f.Changed("ready-timeout") {
		o.ReadyTimeout = readyTimeout
	}
	if f.Changed("ready") {
		o.Ready = readyExpr
	}
	if f.Changed("stable") {
		o.Stable = stableExpr
	}
	if f.Changed("stable-interval") {
		o.StableInterval = stableInterval
	}
	if f.Changed("settle") {
		o.Settle = settle
	}
	if f.Changed("serve") {
		o.Serve = serveDir
	}
	if f.Changed("max-width") {
		o.MaxWidth = maxWidth
	}
	return o, nil
}

// targetURL turns the url argument into a loadable address. Bare paths are
// local files unless a directory is being served, in which case they stay
// relative to it.
func targetURL(arg string, serving bool) (string, error) {
	if strings.Contains(arg, "://") || serving {
		return arg, nil
	}
	return config.FileURL(arg)
}
