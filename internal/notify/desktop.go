package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"linewatch/internal/domain"
)

// Desktop shows a notification through the platform's notifier command:
// notify-send on Linux, osascript on macOS. The command runner is a field
// so tests can intercept it.
type Desktop struct {
	// GOOS overrides runtime.GOOS, for tests.
	GOOS string
	// Run executes the notifier command; defaults to exec.
	Run func(ctx context.Context, name string, args ...string) error
}

func (d *Desktop) Kind() Kind { return KindDesktop }

func (d *Desktop) goos() string {
	if d.GOOS != "" {
		return d.GOOS
	}
	return runtime.GOOS
}

func (d *Desktop) run(ctx context.Context, name string, args ...string) error {
	if d.Run != nil {
		return d.Run(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...).Run()
}

// Notify pops a desktop notification. Bodies are cut down to their first
// lines; popups are not the place for the full record list.
func (d *Desktop) Notify(ctx context.Context, n domain.Notification) error {
	short := shortBody(n.Body)
	switch d.goos() {
	case "linux":
		return d.run(ctx, "notify-send", n.Title, short)
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", short, n.Title)
		return d.run(ctx, "osascript", "-e", script)
	default:
		return fmt.Errorf("desktop notifications unsupported on %s", d.goos())
	}
}

func shortBody(body string) string {
	lines := strings.Split(body, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	short := strings.Join(lines, "\n")
	if runes := []rune(short); len(runes) > 300 {
		short = string(runes[:300])
	}
	return short
}
