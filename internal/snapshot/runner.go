package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/v0xg/graphsnap/internal/browser"
	"github.com/v0xg/graphsnap/internal/config"
	"github.com/v0xg/graphsnap/internal/imageout"
	"github.com/v0xg/graphsnap/internal/serve"
)

// Runner captures targets. A Runner holds no per-run state, so one value can
// drive concurrent runs; each run launches and owns its own browser.
type Runner struct {
	Browser browser.Options
	Logger  *slog.Logger

	// launch is swapped in tests to observe the browser process.
	launch func(context.Context, browser.Options) (*browser.Browser, error)
}

// Result describes a successful run.
type Result struct {
	Target   string
	URL      string
	Output   imageout.Info
	Duration time.Duration
	Trace    []State
}

// Run drives one capture of target from launch to close. On failure it
// returns an *Error and leaves nothing at target.Output.
func Run(ctx context.Context, target config.Target) (*Result, error) {
	return (&Runner{}).Run(ctx, target)
}

// Run drives one capture of target from launch to close. On failure it
// returns an *Error and leaves nothing at target.Output.
func (r *Runner) Run(ctx context.Context, target config.Target) (res *Result, err error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("target", target.Name)

	s := &run{state: StateIdle, trace: []State{StateIdle}, log: log}
	start := time.Now()

	url := target.URL
	if target.Serve != "" {
		srv, err := serve.Start(target.Serve, log)
		if err != nil {
			return nil, s.fail(ErrNavigation, fmt.Errorf("serve %s: %w", target.Serve, err))
		}
		defer srv.Close(context.Background())
		if url, err = srv.Resolve(target.URL); err != nil {
			return nil, s.fail(ErrNavigation, err)
		}
	}

	launch := r.launch
	if launch == nil {
		launch = browser.Launch
	}
	opts := r.Browser
	opts.Logger = log

	b, err := launch(ctx, opts)
	if err != nil {
		return nil, s.fail(ErrBrowserLaunch, err)
	}
	defer func() {
		b.Close()
		s.to(StateClosed)
		if res != nil {
			res.Trace = s.trace
		}
		if e, ok := err.(*Error); ok {
			e.Trace = s.trace
		}
	}()
	s.to(StateBrowserLaunched)

	page, err := b.OpenPage(target.Viewport.Width, target.Viewport.Height)
	if err != nil {
		return nil, s.fail(ErrBrowserLaunch, err)
	}
	s.to(StatePageOpened)

	log.Debug("navigating", "url", url, "viewport", target.Viewport.String())
	navCtx, cancelNav := context.WithTimeout(ctx, target.NavigationTimeout)
	err = navigate(navCtx, page, url)
	cancelNav()
	if err != nil {
		return nil, s.fail(ErrNavigation, fmt.Errorf("%s: %w", url, err))
	}
	s.to(StateNavigated)

	// Selector, predicate and stability waits share one deadline.
	readyCtx, cancelReady := context.WithTimeout(ctx, target.ReadyTimeout)
	defer cancelReady()

	el, err := waitSelector(readyCtx, page, target.Selector)
	if err != nil {
		return nil, s.fail(ErrSelectorTimeout, fmt.Errorf("%s not found within %s: %w", target.Selector, target.ReadyTimeout, err))
	}
	if target.Ready != "" {
		if err := waitPredicate(readyCtx, page, target.Ready); err != nil {
			return nil, s.fail(ErrReadinessTimeout, err)
		}
	}
	if target.Stable != "" {
		v, err := waitStable(readyCtx, page, target.Stable, target.StableInterval)
		if err != nil {
			return nil, s.fail(ErrReadinessTimeout, err)
		}
		log.Debug("probe stable", "value", v)
	}
	if err := sleep(ctx, target.Settle); err != nil {
		return nil, s.fail(ErrReadinessTimeout, fmt.Errorf("settle: %w", err))
	}
	s.to(StateElementReady)

	img, err := captureElement(ctx, el)
	if err != nil {
		return nil, s.fail(ErrCapture, fmt.Errorf("%s: %w", target.Selector, err))
	}
	s.to(StateCaptured)

	info, err := imageout.Write(target.Output, img, imageout.Options{MaxWidth: target.MaxWidth})
	if err != nil {
		return nil, s.fail(ErrIO, err)
	}

	elapsed := time.Since(start)
	log.Info("snapshot written",
		"path", info.Path,
		"size", humanize.Bytes(uint64(info.Size)),
		"width", info.Width,
		"height", info.Height,
		"elapsed", elapsed.Round(time.Millisecond))

	return &Result{
		Target:   target.Name,
		URL:      url,
		Output:   info,
		Duration: elapsed,
	}, nil
}

// run tracks the state machine of a single capture.
type run struct {
	state State
	trace []State
	log   *slog.Logger
}

func (s *run) to(next State) {
	if !CanTransition(s.state, next) {
		s.log.Warn("unexpected state transition", "from", s.state.String(), "to", next.String())
	}
	s.log.Debug("state", "from", s.state.String(), "to", next.String())
	s.state = next
	s.trace = append(s.trace, next)
}

// fail records the failure and moves to the error state. Failures before the
// browser exists close the run immediately since nothing else will.
func (s *run) fail(kind, err error) *Error {
	e := newError(kind, s.state, err)
	s.log.Debug("run failed", "state", s.state.String(), "kind", kind.Error(), "error", err)
	s.to(StateError)
	if e.State == StateIdle {
		s.to(StateClosed)
		e.Trace = s.trace
	}
	return e
}
