// Package monitor runs the poll cycle: fetch, reconcile, compose,
// dispatch, persist, record. One Runner owns one monitored line.
package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"linewatch/internal/compose"
	"linewatch/internal/domain"
	"linewatch/internal/engine"
	"linewatch/internal/feed"
	"linewatch/internal/metrics"
	"linewatch/internal/notify"
	"linewatch/internal/repo"
	"linewatch/internal/state"
)

const defaultTimeout = 15 * time.Second

type Runner struct {
	Source     feed.Source
	Store      *state.Store
	Dispatcher *notify.Dispatcher
	Policy     notify.Policy
	Line       domain.LineContext
	Repo       *repo.Repo       // optional history log
	Metrics    *metrics.Metrics // optional instrumentation
	Timeout    time.Duration
	// PollInterval is carried for callers driving Watch from config.
	PollInterval time.Duration
	Logger       *log.Logger
	Now          func() time.Time
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r *Runner) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return defaultTimeout
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Cycle performs one complete poll. A fetch failure aborts before
// reconciliation with the persisted state untouched; everything after a
// successful fetch proceeds even when individual steps fail, so a broken
// channel or an unwritable state file never swallows a notification.
func (r *Runner) Cycle(ctx context.Context) (domain.CheckResult, error) {
	release, err := r.Store.Lock()
	if err != nil {
		return domain.CheckResult{}, err
	}
	defer release()

	r.logger().Printf("checking line %s (%s) via %s", r.Line.ID, r.Line.Name, r.Source.Name())

	fctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	snap, err := r.Source.Fetch(fctx)
	if err != nil {
		r.logger().Printf("fetch failed, retrying next tick: %v", err)
		check := r.recordCheck(ctx, domain.CheckResult{Line: r.Line.ID, Transition: domain.TransitionNone, Error: err.Error()})
		r.countCheck("fetch_error")
		return check, fmt.Errorf("fetch: %w", err)
	}

	prev := r.Store.Load()
	prev.Line = r.Line.ID
	res, next := engine.Reconcile(prev, snap)

	switch res.Transition {
	case domain.TransitionNew:
		r.logger().Printf("%d new disruption(s) on line %s", len(res.NewIDs), r.Line.ID)
	case domain.TransitionUpdated:
		r.logger().Printf("disruptions updated on line %s", r.Line.ID)
	case domain.TransitionOngoing:
		r.logger().Printf("ongoing: %d disruption(s) on line %s", len(snap.Records), r.Line.ID)
	case domain.TransitionResolved:
		r.logger().Printf("all disruptions on line %s have cleared", r.Line.ID)
	default:
		r.logger().Printf("no disruptions on line %s", r.Line.ID)
	}

	channels := r.Policy.ChannelsFor(res.Transition)
	if len(channels) > 0 {
		if n, ok := compose.Compose(res.Transition, res.Records, r.Line); ok {
			r.dispatch(ctx, n, res.Transition, channels)
		}
	}

	// Dispatch first, persist second: a write failure must not cost the
	// already composed notifications, only risk a repeat next cycle.
	if err := r.Store.Save(next); err != nil {
		r.logger().Printf("state not persisted (may re-notify next cycle): %v", err)
	}

	check := r.recordCheck(ctx, domain.CheckResult{
		Line:          r.Line.ID,
		Transition:    res.Transition,
		RecordCount:   len(snap.Records),
		NewCount:      len(res.NewIDs),
		ResolvedCount: len(res.ResolvedIDs),
	})
	r.countCheck("ok")
	if m := r.Metrics; m != nil {
		m.Transitions.WithLabelValues(string(res.Transition)).Inc()
		m.ActiveDisruptions.Set(float64(len(snap.Records)))
		m.LastSuccessTS.Set(float64(r.now().Unix()))
	}
	return check, nil
}

func (r *Runner) dispatch(ctx context.Context, n domain.Notification, t domain.Transition, channels []notify.Kind) {
	dctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	failed := r.Dispatcher.Dispatch(dctx, n, channels)

	var names, failures []string
	for _, ch := range channels {
		names = append(names, string(ch))
		status := "ok"
		if failed[ch] != nil {
			status = "error"
			failures = append(failures, string(ch))
		}
		if r.Metrics != nil {
			r.Metrics.Dispatches.WithLabelValues(string(ch), status).Inc()
		}
	}
	if r.Repo != nil {
		_, err := r.Repo.RecordNotification(ctx, domain.SentNotification{
			Line:       r.Line.ID,
			Transition: t,
			Title:      n.Title,
			Body:       n.Body,
			Channels:   names,
			Failures:   failures,
		})
		if err != nil {
			r.logger().Printf("notification not recorded: %v", err)
		}
	}
}

func (r *Runner) recordCheck(ctx context.Context, c domain.CheckResult) domain.CheckResult {
	if r.Repo == nil {
		return c
	}
	recorded, err := r.Repo.RecordCheck(ctx, c)
	if err != nil {
		r.logger().Printf("check not recorded: %v", err)
		return c
	}
	return recorded
}

func (r *Runner) countCheck(status string) {
	if r.Metrics != nil {
		r.Metrics.Checks.WithLabelValues(status).Inc()
	}
}

// Watch polls on a fixed interval until the context is canceled. Cycle
// errors are logged and deferred to the next tick, never fatal.
func (r *Runner) Watch(ctx context.Context, interval time.Duration) error {
	if _, err := r.Cycle(ctx); err != nil {
		r.logger().Printf("cycle: %v", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Cycle(ctx); err != nil {
				r.logger().Printf("cycle: %v", err)
			}
		}
	}
}
