package alert

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/veilrpc/veilrpc/internal/model"
)

func TestNativeCommandSender(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skipf("no native command on %s", runtime.GOOS)
	}

	var gotName string
	var gotArgs []string
	s := &NativeCommandSender{
		run: func(name string, args ...string) error {
			gotName = name
			gotArgs = args
			return nil
		},
	}

	err := s.SendNative(model.Notification{
		Type:     model.NotifyPhishingDetected,
		Title:    "Phishing Detected",
		Message:  "lookalike of phantom.app",
		Priority: model.PriorityUrgent,
	})
	if err != nil {
		t.Fatalf("SendNative: %v", err)
	}

	switch runtime.GOOS {
	case "linux":
		if gotName != "notify-send" {
			t.Errorf("command = %q, want notify-send", gotName)
		}
		found := false
		for i, a := range gotArgs {
			if a == "--urgency" && i+1 < len(gotArgs) && gotArgs[i+1] == "critical" {
				found = true
			}
		}
		if !found {
			t.Errorf("urgent notification should map to critical urgency, args %v", gotArgs)
		}
	case "darwin":
		if gotName != "osascript" {
			t.Errorf("command = %q, want osascript", gotName)
		}
	}
}

func TestOverlayFeed(t *testing.T) {
	t.Parallel()

	t.Run("round trip oldest first", func(t *testing.T) {
		t.Parallel()

		f := NewOverlayFeed(10)
		for i := 0; i < 3; i++ {
			if err := f.SendOverlay(model.Notification{Message: fmt.Sprintf("n%d", i)}); err != nil {
				t.Fatalf("SendOverlay: %v", err)
			}
		}

		got := f.Recent()
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for i := range got {
			if got[i].Message != fmt.Sprintf("n%d", i) {
				t.Errorf("entry %d = %q", i, got[i].Message)
			}
		}
	})

	t.Run("drops oldest when full", func(t *testing.T) {
		t.Parallel()

		f := NewOverlayFeed(2)
		for i := 0; i < 5; i++ {
			_ = f.SendOverlay(model.Notification{Message: fmt.Sprintf("n%d", i)})
		}

		got := f.Recent()
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].Message != "n3" || got[1].Message != "n4" {
			t.Errorf("kept %q, %q, want n3, n4", got[0].Message, got[1].Message)
		}
	})

	t.Run("recent returns a copy", func(t *testing.T) {
		t.Parallel()

		f := NewOverlayFeed(5)
		_ = f.SendOverlay(model.Notification{Message: "original"})
		snapshot := f.Recent()
		snapshot[0].Message = "mutated"
		if f.Recent()[0].Message != "original" {
			t.Error("Recent must not expose internal storage")
		}
	})
}
