package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Options configures the browser launch
type Options struct {
	Bin        string // Chrome/Chromium binary; looked up on PATH when empty
	NoSandbox  bool   // Required when running as root inside containers
	ProfileDir string // Persistent profile; a temporary one is used when empty
	Logger     *slog.Logger
}

// Browser owns one headless browser process and its DevTools connection.
// Close must be called on every path once Launch succeeds.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	pid      int
	log      *slog.Logger

	// keepProfile is set when the caller supplied the profile directory.
	keepProfile bool

	closeOnce sync.Once
}

// Launch starts a headless browser and connects to it
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	bin := opts.Bin
	if bin == "" {
		// An empty Bin makes the launcher download a pinned Chromium.
		bin, _ = launcher.LookPath()
	}

	l := launcher.New().Context(ctx).Bin(bin).Headless(true).NoSandbox(opts.NoSandbox)
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	b := &Browser{launcher: l, log: log, keepProfile: opts.ProfileDir != ""}

	u, err := l.Launch()
	b.pid = l.PID()
	if err != nil {
		// The process may be running when only the DevTools URL lookup failed.
		if b.pid != 0 {
			b.Close()
		}
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	log.Debug("browser launched", "bin", bin, "pid", b.pid, "control_url", u)

	rb := rod.New().ControlURL(u).Context(ctx)
	if err := rb.Connect(); err != nil {
		b.Close()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	b.browser = rb

	return b, nil
}

// PID returns the browser process id
func (b *Browser) PID() int {
	return b.pid
}

// OpenPage creates a blank page with the given viewport
func (b *Browser) OpenPage(width, height int) (*rod.Page, error) {
	if b.browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("set viewport %dx%d: %w", width, height, err)
	}

	return page, nil
}

// Close shuts the browser down, waits for its process to exit and removes
// the temporary profile. A profile directory passed in Options is left in
// place. It is safe to call more than once.
func (b *Browser) Close() {
	b.closeOnce.Do(func() {
		if b.browser != nil {
			// The process is killed below regardless, so a failed graceful
			// close is only logged.
			if err := b.browser.Close(); err != nil {
				b.log.Debug("graceful browser close failed", "pid", b.pid, "error", err)
			}
		}
		if b.launcher != nil {
			b.launcher.Kill()
			if b.keepProfile {
				// Cleanup removes whatever user data dir the launcher holds.
				b.launcher.Delete(flags.UserDataDir)
			}
			b.launcher.Cleanup()
		}
		b.log.Debug("browser closed", "pid", b.pid)
	})
}
