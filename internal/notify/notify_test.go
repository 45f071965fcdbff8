package notify_test

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"linewatch/internal/config"
	"linewatch/internal/domain"
	"linewatch/internal/notify"
)

type fakeNotifier struct {
	kind  notify.Kind
	calls int
	err   error
	last  domain.Notification
}

func (f *fakeNotifier) Kind() notify.Kind { return f.kind }

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) error {
	f.calls++
	f.last = n
	return f.err
}

func TestDefaultPolicy(t *testing.T) {
	p := notify.DefaultPolicy([]notify.Kind{notify.KindDesktop, notify.KindEmail})
	if got := p.ChannelsFor(domain.TransitionNew); len(got) != 2 {
		t.Fatalf("new channels = %v, want all configured", got)
	}
	if got := p.ChannelsFor(domain.TransitionResolved); !reflect.DeepEqual(got, []notify.Kind{notify.KindDesktop}) {
		t.Fatalf("resolved channels = %v, want desktop only", got)
	}
	if got := p.ChannelsFor(domain.TransitionOngoing); len(got) != 0 {
		t.Fatalf("ongoing must never dispatch, got %v", got)
	}
	if got := p.ChannelsFor(domain.TransitionNone); len(got) != 0 {
		t.Fatalf("none must never dispatch, got %v", got)
	}
}

func TestPolicyFromConfigOverrides(t *testing.T) {
	cfg := config.Default("29", "Näsbyparkslinjen")
	cfg.Notify = map[string][]string{
		"resolved": {"email"},
		"updated":  {"desktop"},
	}
	p := notify.PolicyFromConfig(cfg, []notify.Kind{notify.KindDesktop, notify.KindEmail})
	if got := p.ChannelsFor(domain.TransitionResolved); !reflect.DeepEqual(got, []notify.Kind{notify.KindEmail}) {
		t.Fatalf("resolved channels = %v, want email", got)
	}
	if got := p.ChannelsFor(domain.TransitionUpdated); !reflect.DeepEqual(got, []notify.Kind{notify.KindDesktop}) {
		t.Fatalf("updated channels = %v, want desktop", got)
	}
}

func TestPolicyDropsUnconfiguredChannels(t *testing.T) {
	cfg := config.Default("29", "x")
	cfg.Notify = map[string][]string{"new": {"desktop", "mqtt"}}
	p := notify.PolicyFromConfig(cfg, []notify.Kind{notify.KindDesktop})
	if got := p.ChannelsFor(domain.TransitionNew); !reflect.DeepEqual(got, []notify.Kind{notify.KindDesktop}) {
		t.Fatalf("unconfigured mqtt should be dropped, got %v", got)
	}
}

func TestPolicyRefusesOngoingDispatch(t *testing.T) {
	cfg := config.Default("29", "x")
	cfg.Notify = map[string][]string{"ongoing": {"desktop"}}
	p := notify.PolicyFromConfig(cfg, []notify.Kind{notify.KindDesktop})
	if got := p.ChannelsFor(domain.TransitionOngoing); len(got) != 0 {
		t.Fatalf("ongoing dispatch must be refused, got %v", got)
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	desktop := &fakeNotifier{kind: notify.KindDesktop}
	email := &fakeNotifier{kind: notify.KindEmail, err: errors.New("smtp down")}
	d := notify.NewDispatcher(email, desktop)
	d.Logger = log.New(io.Discard, "", 0)

	n := domain.Notification{Title: "t", Body: "b"}
	failures := d.Dispatch(context.Background(), n, []notify.Kind{notify.KindEmail, notify.KindDesktop})

	if desktop.calls != 1 {
		t.Fatalf("desktop not invoked despite email failure")
	}
	if len(failures) != 1 || failures[notify.KindEmail] == nil {
		t.Fatalf("failures = %v, want email only", failures)
	}
}

func TestDispatchSkipsUnknownChannel(t *testing.T) {
	desktop := &fakeNotifier{kind: notify.KindDesktop}
	d := notify.NewDispatcher(desktop)
	failures := d.Dispatch(context.Background(), domain.Notification{}, []notify.Kind{notify.KindMQTT, notify.KindDesktop})
	if len(failures) != 0 {
		t.Fatalf("unknown channel should be skipped, got %v", failures)
	}
	if desktop.calls != 1 {
		t.Fatalf("known channel skipped")
	}
}

func TestDispatcherKindsStableOrder(t *testing.T) {
	d := notify.NewDispatcher(&fakeNotifier{kind: notify.KindMQTT}, &fakeNotifier{kind: notify.KindDesktop})
	want := []notify.Kind{notify.KindDesktop, notify.KindMQTT}
	if got := d.Kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestDesktopCommandPerPlatform(t *testing.T) {
	var gotName string
	var gotArgs []string
	d := &notify.Desktop{
		GOOS: "linux",
		Run: func(_ context.Context, name string, args ...string) error {
			gotName, gotArgs = name, args
			return nil
		},
	}
	n := domain.Notification{Title: "New disruption on line 29", Body: "1. Delay\n   details"}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotName != "notify-send" {
		t.Fatalf("command = %q, want notify-send", gotName)
	}
	if len(gotArgs) != 2 || gotArgs[0] != n.Title {
		t.Fatalf("args = %v", gotArgs)
	}

	d.GOOS = "darwin"
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("notify darwin: %v", err)
	}
	if gotName != "osascript" || !strings.Contains(strings.Join(gotArgs, " "), "display notification") {
		t.Fatalf("darwin command = %q %v", gotName, gotArgs)
	}

	d.GOOS = "plan9"
	if err := d.Notify(context.Background(), n); err == nil {
		t.Fatalf("expected unsupported-platform error")
	}
}

func TestDesktopTruncatesOnRuneBoundary(t *testing.T) {
	var gotBody string
	d := &notify.Desktop{
		GOOS: "linux",
		Run: func(_ context.Context, _ string, args ...string) error {
			gotBody = args[1]
			return nil
		},
	}
	n := domain.Notification{
		Title: "Ongoing disruption on line 29",
		Body:  "Förseningar mellan Årstaberg och Älvsjö. " + strings.Repeat("ö", 320),
	}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !utf8.ValidString(gotBody) {
		t.Fatalf("body cut mid-rune: %q", gotBody[len(gotBody)-4:])
	}
	if got := utf8.RuneCountInString(gotBody); got != 300 {
		t.Fatalf("body = %d runes, want 300", got)
	}
}
