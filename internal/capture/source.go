package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FrameSource produces one encoded frame per monitor.
type FrameSource interface {
	// Frame returns the current frame of a monitor as encoded image bytes.
	Frame(ctx context.Context, monitor int) ([]byte, error)
}

// WindowInspector reports the currently focused window.
type WindowInspector interface {
	// FocusedWindow returns the focused window's title and application name.
	FocusedWindow(ctx context.Context) (title, app string, err error)
}

// IdleProbe reports how long the user has been idle.
type IdleProbe interface {
	IdleDuration(ctx context.Context) (time.Duration, error)
}

// Desktop environments expose screenshots, focus and idle time through
// wildly different interfaces, so the production implementations shell out
// to configurable commands instead of binding to one platform API.

// execFrameSource runs a screenshot command that writes a PNG to stdout. The
// monitor index is appended as the last argument.
type execFrameSource struct {
	command string
}

func NewExecFrameSource(command string) (FrameSource, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("screenshot command is required")
	}
	return &execFrameSource{command: command}, nil
}

func (s *execFrameSource) Frame(ctx context.Context, monitor int) ([]byte, error) {
	args := append(splitCommand(s.command), strconv.Itoa(monitor))
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return nil, errors.Wrapf(err, "screenshot command failed for monitor %d", monitor)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("screenshot command produced no output for monitor %d", monitor)
	}
	return out, nil
}

// execWindowInspector runs a command that prints "title\tapp" on one line.
type execWindowInspector struct {
	command string
}

func NewExecWindowInspector(command string) (WindowInspector, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("window command is required")
	}
	return &execWindowInspector{command: command}, nil
}

func (w *execWindowInspector) FocusedWindow(ctx context.Context) (string, string, error) {
	args := splitCommand(w.command)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return "", "", errors.Wrap(err, "window command failed")
	}
	line := strings.TrimSpace(string(out))
	title, app, _ := strings.Cut(line, "\t")
	return title, app, nil
}

// execIdleProbe runs a command that prints the idle time in milliseconds.
type execIdleProbe struct {
	command string
}

func NewExecIdleProbe(command string) (IdleProbe, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("idle command is required")
	}
	return &execIdleProbe{command: command}, nil
}

func (p *execIdleProbe) IdleDuration(ctx context.Context) (time.Duration, error) {
	args := splitCommand(p.command)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return 0, errors.Wrap(err, "idle command failed")
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "idle command output is not a number")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func splitCommand(command string) []string {
	return strings.Fields(command)
}
