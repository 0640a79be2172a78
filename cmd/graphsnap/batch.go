package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/v0xg/graphsnap/internal/config"
	"github.com/v0xg/graphsnap/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [target...]",
		Short: "Capture several configured targets, each in its own browser",
		Long: `batch runs the named targets from the config file (all of them when none
are named). Runs are independent: each launches its own browser and writes
its own output. A failing target does not stop the others.`,
		RunE: runBatch,
	}
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Maximum concurrent browsers (default: config value)")
	return cmd
}

type batchOutcome struct {
	name string
	res  *snapshot.Result
	err  error
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Debug && !verbose {
		setupLogging(true)
	}

	targets, limit, err := planBatch(cfg, args)
	if err != nil {
		return err
	}

	outcomes := captureAll(cmd, targets, cfg, limit)

	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			fmt.Printf("✗ %s: %v\n", o.name, o.err)
			errs = append(errs, fmt.Errorf("%s: %w", o.name, o.err))
			continue
		}
		fmt.Printf("✓ %s → %s (%dx%d, %s)\n", o.name, o.res.Output.Path, o.res.Output.Width, o.res.Output.Height, humanize.Bytes(uint64(o.res.Output.Size)))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d targets failed: %w", len(errs), len(targets), errors.Join(errs...))
	}
	return nil
}

// planBatch resolves the named targets (all configured ones when none are
// named) and the concurrency limit. Concurrent runs must not share an output
// file or a browser profile.
func planBatch(cfg config.Config, names []string) ([]config.Target, int, error) {
	if len(names) == 0 {
		names = cfg.TargetNames()
	}
	if len(names) == 0 {
		return nil, 0, fmt.Errorf("no targets configured")
	}

	targets := make([]config.Target, 0, len(names))
	owners := make(map[string]string, len(names))
	for _, name := range names {
		t, err := cfg.Target(name)
		if err != nil {
			return nil, 0, err
		}
		if err := t.Validate(); err != nil {
			return nil, 0, err
		}
		out, err := filepath.Abs(t.Output)
		if err != nil {
			return nil, 0, fmt.Errorf("target %s: %w", name, err)
		}
		if prev, ok := owners[out]; ok {
			return nil, 0, fmt.Errorf("targets %s and %s both write %s", prev, name, out)
		}
		owners[out] = name
		targets = append(targets, t)
	}

	limit := cfg.Parallel
	if parallel > 0 {
		limit = parallel
	}
	if limit < 1 {
		limit = 1
	}
	if dir := browserOptions(cfg).ProfileDir; dir != "" && limit > 1 {
		slog.Warn("Browser profile is shared, capturing one target at a time", "profile", dir)
		limit = 1
	}
	return targets, limit, nil
}

// captureAll runs every target with at most limit browsers alive at once.
// Outcomes keep the order of targets.
func captureAll(cmd *cobra.Command, targets []config.Target, cfg config.Config, limit int) []batchOutcome {
	runner := &snapshot.Runner{Browser: browserOptions(cfg)}
	outcomes := make([]batchOutcome, len(targets))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(limit)

	fmt.Printf("→ Capturing %d targets (%d at a time)...\n", len(targets), limit)
	for i, t := range targets {
		g.Go(func() error {
			res, err := runner.Run(ctx, t)
			if err != nil {
				slog.Warn("Target failed", "target", t.Name, "error", err)
			}

			mu.Lock()
			outcomes[i] = batchOutcome{name: t.Name, res: res, err: err}
			mu.Unlock()

			return nil // a failed target must not cancel the others
		})
	}
	_ = g.Wait()

	return outcomes
}
