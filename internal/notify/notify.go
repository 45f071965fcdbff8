// Package notify decides where a composed notification goes and fans it
// out. Delivery itself sits behind the Notifier capability interface, so
// the core never knows how a desktop popup or an email actually happens.
package notify

import (
	"context"
	"log"

	"linewatch/internal/config"
	"linewatch/internal/domain"
)

// Kind identifies a delivery channel.
type Kind string

const (
	KindDesktop Kind = "desktop"
	KindEmail   Kind = "email"
	KindMQTT    Kind = "mqtt"
)

// Notifier delivers one notification over one channel.
type Notifier interface {
	Kind() Kind
	Notify(ctx context.Context, n domain.Notification) error
}

// Policy maps transitions to the channels they dispatch to. The table is
// explicit and configurable because the intended behavior genuinely
// varies between deployments (resolved notices in particular).
type Policy map[domain.Transition][]Kind

// DefaultPolicy dispatches new and updated transitions to every
// configured channel, resolved to desktop only, and nothing for ongoing
// or none.
func DefaultPolicy(configured []Kind) Policy {
	p := Policy{
		domain.TransitionNew:     append([]Kind(nil), configured...),
		domain.TransitionUpdated: append([]Kind(nil), configured...),
	}
	for _, k := range configured {
		if k == KindDesktop {
			p[domain.TransitionResolved] = []Kind{KindDesktop}
		}
	}
	return p
}

// PolicyFromConfig starts from the defaults and applies the notify table
// from linewatch.yml. Channels that are not actually configured are
// dropped silently; ongoing and none never dispatch regardless of config.
func PolicyFromConfig(cfg *config.Config, configured []Kind) Policy {
	p := DefaultPolicy(configured)
	enabled := make(map[Kind]bool, len(configured))
	for _, k := range configured {
		enabled[k] = true
	}
	for transition, channels := range cfg.Notify {
		t := domain.Transition(transition)
		if t == domain.TransitionOngoing || t == domain.TransitionNone {
			continue
		}
		var kinds []Kind
		for _, ch := range channels {
			if k := Kind(ch); enabled[k] {
				kinds = append(kinds, k)
			}
		}
		p[t] = kinds
	}
	return p
}

// ChannelsFor returns the channel set for a transition. None and Ongoing
// always return nothing unless the table says otherwise for Ongoing --
// it cannot, PolicyFromConfig refuses it.
func (p Policy) ChannelsFor(t domain.Transition) []Kind {
	return p[t]
}

// Dispatcher fans a notification out to a channel set. A failing channel
// is logged and isolated; it never blocks the other channels or the rest
// of the cycle.
type Dispatcher struct {
	Notifiers map[Kind]Notifier
	Logger    *log.Logger
}

// NewDispatcher indexes notifiers by kind.
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	d := &Dispatcher{Notifiers: make(map[Kind]Notifier, len(notifiers))}
	for _, n := range notifiers {
		d.Notifiers[n.Kind()] = n
	}
	return d
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Kinds returns the configured channel kinds in registration-independent
// stable order: desktop, email, mqtt.
func (d *Dispatcher) Kinds() []Kind {
	var kinds []Kind
	for _, k := range []Kind{KindDesktop, KindEmail, KindMQTT} {
		if _, ok := d.Notifiers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Dispatch delivers n to every requested channel, returning the failures
// per channel. Channels without a configured notifier are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification, channels []Kind) map[Kind]error {
	failures := make(map[Kind]error)
	for _, kind := range channels {
		notifier, ok := d.Notifiers[kind]
		if !ok {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			d.logger().Printf("notify: %s channel failed: %v", kind, err)
			failures[kind] = err
		}
	}
	return failures
}
