package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

const (
	pollInterval = 100 * time.Millisecond

	// Network idle after load is waited for at most this long; pages with
	// open connections never go idle.
	requestIdleTimeout = 5 * time.Second
	requestIdleWindow  = 500 * time.Millisecond
)

// navigate loads url and waits for the load event, then for a short bounded
// network idle.
func navigate(ctx context.Context, page *rod.Page, url string) error {
	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}

	idleCtx, cancel := context.WithTimeout(ctx, requestIdleTimeout)
	defer cancel()
	page.Context(idleCtx).WaitRequestIdle(requestIdleWindow, nil, nil, nil)()
	return nil
}

// waitSelector blocks until an element matching selector is in the DOM.
func waitSelector(ctx context.Context, page *rod.Page, selector string) (*rod.Element, error) {
	return page.Context(ctx).Element(selector)
}

// readyJS wraps a user expression so that exceptions count as "not ready".
func readyJS(expr string) string {
	return `() => { try { return !!(` + expr + `); } catch (e) { return false; } }`
}

// sampleJS wraps a user expression so that anything but a finite number
// comes back as null.
func sampleJS(expr string) string {
	return `() => { try { const v = (` + expr + `); return (typeof v === 'number' && isFinite(v)) ? v : null; } catch (e) { return null; } }`
}

// waitPredicate polls expr until it is truthy or ctx is done.
func waitPredicate(ctx context.Context, page *rod.Page, expr string) error {
	js := readyJS(expr)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		res, err := page.Context(ctx).Eval(js)
		if err == nil && res.Value.Bool() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("predicate %q never became true: %w", expr, ctx.Err())
		case <-ticker.C:
		}
	}
}

// waitStable polls expr every interval until two consecutive samples are the
// same number. The sample may legitimately sit at zero; only null (an error or
// a non-number) keeps the wait going.
func waitStable(ctx context.Context, page *rod.Page, expr string, interval time.Duration) (float64, error) {
	js := sampleJS(expr)
	sample := func() (float64, bool) {
		res, err := page.Context(ctx).Eval(js)
		if err != nil || res.Value.Nil() {
			return 0, false
		}
		return res.Value.Num(), true
	}

	prev, havePrev := sample()
	for {
		select {
		case <-ctx.Done():
			return prev, fmt.Errorf("probe %q never stabilized (last %v): %w", expr, prev, ctx.Err())
		case <-time.After(interval):
		}

		cur, ok := sample()
		if ok && havePrev && cur == prev {
			return cur, nil
		}
		prev, havePrev = cur, ok
	}
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
