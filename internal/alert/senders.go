package alert

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/veilrpc/veilrpc/internal/model"
)

// NativeCommandSender delivers notifications through the operating
// system's notification facility: notify-send on Linux, osascript on
// macOS. Platforms without a known command report an error, which the
// hub records as a false channel flag.
type NativeCommandSender struct {
	// run is swapped in tests to observe invocations.
	run func(name string, args ...string) error
}

// NewNativeCommandSender creates a sender for the current platform.
func NewNativeCommandSender() *NativeCommandSender {
	return &NativeCommandSender{
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// SendNative implements NativeSender.
func (s *NativeCommandSender) SendNative(n model.Notification) error {
	switch runtime.GOOS {
	case "linux":
		urgency := "normal"
		if n.Priority >= model.PriorityHigh {
			urgency = "critical"
		}
		return s.run("notify-send", "--urgency", urgency, "--app-name", "veilrpc", n.Title, n.Message)
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", n.Message, n.Title)
		return s.run("osascript", "-e", script)
	default:
		return fmt.Errorf("no native notification command for %s", runtime.GOOS)
	}
}

// defaultFeedSize bounds how many notifications the overlay feed holds.
const defaultFeedSize = 50

// OverlayFeed buffers delivered notifications for the in-context
// overlay, which polls the relay rather than holding a push channel
// open. Oldest entries are dropped when the buffer is full.
type OverlayFeed struct {
	mu      sync.Mutex
	entries []model.Notification
	max     int
}

// NewOverlayFeed creates a feed holding up to size entries; a
// non-positive size uses the default.
func NewOverlayFeed(size int) *OverlayFeed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &OverlayFeed{max: size}
}

// SendOverlay implements OverlaySender.
func (f *OverlayFeed) SendOverlay(n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, n)
	if len(f.entries) > f.max {
		f.entries = f.entries[len(f.entries)-f.max:]
	}
	return nil
}

// Recent returns the buffered notifications, oldest first.
func (f *OverlayFeed) Recent() []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Notification, len(f.entries))
	copy(out, f.entries)
	return out
}
