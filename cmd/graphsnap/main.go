package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/v0xg/graphsnap/internal/browser"
	"github.com/v0xg/graphsnap/internal/config"
	"github.com/v0xg/graphsnap/internal/snapshot"
)

var (
	configPath     string
	presetName     string
	targetName     string
	selector       string
	output         string
	width          int
	height         int
	navTimeout     time.Duration
	readyTimeout   time.Duration
	readyExpr      string
	stableExpr     string
	stableInterval time.Duration
	settle         time.Duration
	serveDir       string
	maxWidth       uint
	browserBin     string
	noSandbox      bool
	profileDir     string
	parallel       int
	verbose        bool
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logFailure(err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "graphsnap [url]",
		Short: "Capture a rendered graph visualization to an image",
		Long: `graphsnap loads a page in a headless browser, waits until its graph
visualization has rendered, and writes a bitmap of one element to a file.

Without arguments it runs the "file" preset: index.html from the working
directory, element #cy, written to docs/tree.png at 1200x800.

Examples:
  graphsnap
  graphsnap --preset server
  graphsnap http://localhost:8080/ --selector "#cy" -o docs/tree.png
  graphsnap --serve ./site index.html --stable "window.cy.nodes().length"
  graphsnap --config graphsnap.yml --target tree`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
		RunE: run,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", os.Getenv("GRAPHSNAP_CONFIG"), "Path to graphsnap.yml (default: ./graphsnap.yml if present)")
	pf.StringVar(&browserBin, "bin", "", "Chrome/Chromium binary (default: $GRAPHSNAP_BROWSER_BIN, config, or PATH lookup)")
	pf.BoolVar(&noSandbox, "no-sandbox", false, "Disable the Chromium sandbox (needed as root in containers)")
	pf.StringVar(&profileDir, "profile", "", "Chrome/Chromium profile directory (default: temporary)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	f := rootCmd.Flags()
	f.StringVarP(&presetName, "preset", "p", "", "Built-in preset: file, file-settle, server")
	f.StringVarP(&targetName, "target", "t", "", "Named target from the config file")
	f.StringVarP(&selector, "selector", "s", "", "CSS selector of the element to capture")
	f.StringVarP(&output, "output", "o", "", "Output image path (.png or .webp)")
	f.IntVar(&width, "width", 0, "Viewport width")
	f.IntVar(&height, "height", 0, "Viewport height")
	f.DurationVar(&navTimeout, "nav-timeout", 0, "Navigation timeout")
	f.DurationVar(&readyTimeout, "ready-timeout", 0, "Timeout for the element and readiness waits")
	f.StringVar(&readyExpr, "ready", "", "JS expression that must become truthy before capture")
	f.StringVar(&stableExpr, "stable", "", "JS numeric expression that must stop changing before capture")
	f.DurationVar(&stableInterval, "stable-interval", 0, "Interval between stability samples")
	f.DurationVar(&settle, "settle", 0, "Fixed delay after all waits")
	f.StringVar(&serveDir, "serve", "", "Serve this directory over HTTP and load the url relative to it")
	f.UintVar(&maxWidth, "max-width", 0, "Downscale the image to at most this width")

	rootCmd.AddCommand(newBatchCmd(), newPresetsCmd())
	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Debug && !verbose {
		setupLogging(true)
	}

	target, err := resolveTarget(cmd, args, cfg)
	if err != nil {
		return err
	}

	slog.Debug("Starting graphsnap",
		"target", target.Name,
		"url", target.URL,
		"selector", target.Selector,
		"output", target.Output,
		"viewport", target.Viewport.String())

	runner := &snapshot.Runner{Browser: browserOptions(cfg)}

	fmt.Printf("→ Capturing %s from %s... ", target.Selector, sourceLabel(target))
	res, err := runner.Run(cmd.Context(), target)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("done")

	slog.Debug("Loaded page", "url", res.URL)
	fmt.Printf("✓ Saved to %s (%dx%d, %s)\n", target.Output, res.Output.Width, res.Output.Height, humanize.Bytes(uint64(res.Output.Size)))
	return nil
}

// sourceLabel names where the page comes from for progress output. Served
// targets show the file inside the served directory since the loopback URL
// is only known once the run starts.
func sourceLabel(t config.Target) string {
	if t.Serve == "" || strings.Contains(t.URL, "://") {
		return t.URL
	}
	return filepath.Join(t.Serve, t.URL) + " (served)"
}

// loadConfig reads the config file named by --config, or ./graphsnap.yml
// when it exists. No file means an empty config.
func loadConfig() (config.Config, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = "graphsnap.yml"
	}
	if _, err := os.Stat(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("config: %w", err)
		}
		return config.Config{Parallel: config.DefaultParallel}, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	slog.Debug("Loaded config", "path", path, "targets", len(cfg.Targets))
	return cfg, nil
}

func browserOptions(cfg config.Config) browser.Options {
	opts := browser.Options{
		Bin:        cfg.Browser.Bin,
		NoSandbox:  cfg.Browser.NoSandbox || noSandbox,
		ProfileDir: cfg.Browser.ProfileDir,
	}
	if env := os.Getenv("GRAPHSNAP_BROWSER_BIN"); env != "" {
		opts.Bin = env
	}
	if browserBin != "" {
		opts.Bin = browserBin
	}
	if profileDir != "" {
		opts.ProfileDir = profileDir
	}
	return opts
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	})))
}

// logFailure reports the error that ends the process.
func logFailure(err error) {
	attrs := []any{tint.Err(err)}
	if kind := snapshot.Kind(err); kind != nil {
		attrs = append(attrs, "kind", kind.Error())
	}
	slog.Error("graphsnap failed", attrs...)
}
