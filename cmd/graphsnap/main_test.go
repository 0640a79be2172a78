package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/graphsnap/internal/config"
	"github.com/v0xg/graphsnap/internal/snapshot"
)

// parse builds a fresh root command, which also resets every flag variable,
// and parses flags into it.
func parse(t *testing.T, argv ...string) (*cobra.Command, []string) {
	t.Helper()
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(argv))
	return cmd, cmd.Flags().Args()
}

func TestResolveTarget_DefaultPreset(t *testing.T) {
	cmd, args := parse(t)

	target, err := resolveTarget(cmd, args, config.Config{})
	require.NoError(t, err)

	assert.Equal(t, "file", target.Name)
	assert.True(t, strings.HasPrefix(target.URL, "file:///"), target.URL)
	assert.True(t, strings.HasSuffix(target.URL, "/index.html"), target.URL)
	assert.Equal(t, "#cy", target.Selector)
	assert.Equal(t, "docs/tree.png", target.Output)
	assert.Equal(t, config.Viewport{Width: 1200, Height: 800}, target.Viewport)
	assert.Equal(t, config.CytoscapeReady, target.Ready)
	assert.Equal(t, 500*time.Millisecond, target.Settle)
}

func TestResolveTarget_URLArgument(t *testing.T) {
	cmd, args := parse(t, "http://localhost:9000/graph.html", "-o", "out/graph.png", "--ready-timeout", "2s")

	target, err := resolveTarget(cmd, args, config.Config{})
	require.NoError(t, err)

	assert.Equal(t, "cli", target.Name)
	assert.Equal(t, "http://localhost:9000/graph.html", target.URL)
	assert.Equal(t, "out/graph.png", target.Output)
	assert.Equal(t, 2*time.Second, target.ReadyTimeout)
	assert.Empty(t, target.Ready)
	assert.Zero(t, target.Settle)
}

func TestResolveTarget_BarePathIsFile(t *testing.T) {
	cmd, args := parse(t, "site/index.html")

	target, err := resolveTarget(cmd, args, config.Config{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(target.URL, "file:///"), target.URL)
	assert.True(t, strings.HasSuffix(target.URL, "/site/index.html"), target.URL)
}

func TestResolveTarget_PresetWithOverrides(t *testing.T) {
	cmd, args := parse(t, "--preset", "server", "--selector", "#graph", "--width", "800", "--settle", "1s")

	target, err := resolveTarget(cmd, args, config.Config{})
	require.NoError(t, err)

	assert.Equal(t, "server", target.Name)
	assert.Equal(t, "http://localhost:8080/", target.URL)
	assert.Equal(t, "#graph", target.Selector)
	assert.Equal(t, config.Viewport{Width: 800, Height: 800}, target.Viewport)
	assert.Equal(t, time.Second, target.Settle)
	assert.Equal(t, config.CytoscapeNodeCount, target.Stable)
}

func TestResolveTarget_ConfigTarget(t *testing.T) {
	cfg := config.Config{Targets: map[string]config.Target{
		"dag": {URL: "http://localhost:8080/dag.html", Selector: "#dag", Output: "docs/dag.png"},
	}}
	cmd, args := parse(t, "--target", "dag", "--output", "build/dag.webp")

	target, err := resolveTarget(cmd, args, cfg)
	require.NoError(t, err)

	assert.Equal(t, "dag", target.Name)
	assert.Equal(t, "#dag", target.Selector)
	assert.Equal(t, "build/dag.webp", target.Output)
	assert.Equal(t, config.DefaultReadyTimeout, target.ReadyTimeout)
}

func TestResolveTarget_ServeKeepsRelativeURL(t *testing.T) {
	dir := t.TempDir()
	cmd, args := parse(t, "--serve", dir, "graphs/tree.html")

	target, err := resolveTarget(cmd, args, config.Config{})
	require.NoError(t, err)
	assert.Equal(t, dir, target.Serve)
	assert.Equal(t, "graphs/tree.html", target.URL)
}

func TestResolveTarget_ServeWithoutURL(t *testing.T) {
	dir := t.TempDir()
	cmd, args := parse(t, "--serve", dir)

	target, err := resolveTarget(cmd, args, config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "cli", target.Name)
	assert.Empty(t, target.URL)
	assert.Equal(t, dir, target.Serve)
}

func TestResolveTarget_Errors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"preset and target", []string{"--preset", "file", "--target", "x"}, "mutually exclusive"},
		{"unknown preset", []string{"--preset", "remote"}, "unknown preset"},
		{"unknown target", []string{"--target", "nope"}, "unknown target"},
		{"zero width", []string{"http://localhost/", "--width", "0"}, "--width must be positive"},
		{"negative height", []string{"http://localhost/", "--height", "-5"}, "--height must be positive"},
		{"bad scheme", []string{"ftp://localhost/x"}, "unsupported url scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := parse(t, tt.argv...)
			_, err := resolveTarget(cmd, args, config.Config{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("no file is an empty config", func(t *testing.T) {
		parse(t)
		configPath = ""
		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Empty(t, cfg.Targets)
		assert.Equal(t, config.DefaultParallel, cfg.Parallel)
	})

	t.Run("explicit missing file fails", func(t *testing.T) {
		parse(t, "--config", filepath.Join(t.TempDir(), "missing.yml"))
		_, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "graphsnap.yml")
		require.NoError(t, os.WriteFile(path, []byte("targets:\n  tree:\n    url: http://localhost:8080/\n"), 0o644))
		parse(t, "--config", path)

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, []string{"tree"}, cfg.TargetNames())
	})
}

func TestBrowserOptions(t *testing.T) {
	t.Setenv("GRAPHSNAP_BROWSER_BIN", "")
	cfg := config.Config{Browser: config.Browser{Bin: "/opt/chrome", ProfileDir: "/tmp/p"}}

	parse(t)
	opts := browserOptions(cfg)
	assert.Equal(t, "/opt/chrome", opts.Bin)
	assert.Equal(t, "/tmp/p", opts.ProfileDir)
	assert.False(t, opts.NoSandbox)

	t.Setenv("GRAPHSNAP_BROWSER_BIN", "/env/chromium")
	assert.Equal(t, "/env/chromium", browserOptions(cfg).Bin)

	parse(t, "--bin", "/flag/chromium", "--no-sandbox")
	opts = browserOptions(cfg)
	assert.Equal(t, "/flag/chromium", opts.Bin)
	assert.True(t, opts.NoSandbox)
}

func TestCaptureAll_FailuresDoNotStopOthers(t *testing.T) {
	parse(t, "--bin", "/nonexistent/chromium")

	out := t.TempDir()
	var targets []config.Target
	for _, name := range []string{"a", "b", "c"} {
		tgt := config.Target{Name: name, URL: "http://127.0.0.1:1/", Output: filepath.Join(out, name+".png")}
		tgt.ApplyDefaults()
		targets = append(targets, tgt)
	}

	cmd := &cobra.Command{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd.SetContext(ctx)

	outcomes := captureAll(cmd, targets, config.Config{}, 2)
	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.Equal(t, targets[i].Name, o.name)
		assert.Nil(t, o.res)
		assert.ErrorIs(t, o.err, snapshot.ErrBrowserLaunch)
	}

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlanBatch_RejectsSharedOutput(t *testing.T) {
	parse(t)
	cfg := config.Config{Parallel: 2, Targets: map[string]config.Target{
		"tree": {URL: "http://localhost:8080/tree.html"},
		"dag":  {URL: "http://localhost:8080/dag.html"},
	}}

	_, _, err := planBatch(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets dag and tree both write")

	_, _, err = planBatch(cfg, []string{"tree", "tree"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both write")
}

func TestPlanBatch_Limit(t *testing.T) {
	out := t.TempDir()
	cfg := config.Config{Parallel: 3, Targets: map[string]config.Target{
		"a": {URL: "http://localhost:8080/a.html", Output: filepath.Join(out, "a.png")},
		"b": {URL: "http://localhost:8080/b.html", Output: filepath.Join(out, "b.png")},
	}}

	parse(t)
	targets, limit, err := planBatch(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, limit)
	require.Len(t, targets, 2)
	assert.Equal(t, "a", targets[0].Name)
	assert.Equal(t, "b", targets[1].Name)

	parallel = 5
	_, limit, err = planBatch(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)

	t.Run("profile from config", func(t *testing.T) {
		parse(t)
		shared := cfg
		shared.Browser.ProfileDir = filepath.Join(t.TempDir(), "profile")
		_, limit, err := planBatch(shared, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, limit)
	})

	t.Run("profile from flag", func(t *testing.T) {
		parse(t, "--profile", filepath.Join(t.TempDir(), "profile"))
		_, limit, err := planBatch(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, limit)
	})
}

func TestPlanBatch_NoTargets(t *testing.T) {
	parse(t)
	_, _, err := planBatch(config.Config{}, nil)
	assert.Error(t, err)
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/", sourceLabel(config.Target{URL: "http://localhost:8080/"}))
	assert.Equal(t, "site/graphs/tree.html (served)", sourceLabel(config.Target{Serve: "site", URL: "graphs/tree.html"}))
	assert.Equal(t, "site (served)", sourceLabel(config.Target{Serve: "site"}))
	assert.Equal(t, "http://example.com/x", sourceLabel(config.Target{Serve: "site", URL: "http://example.com/x"}))
}
