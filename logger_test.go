package pgpme

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNopLogger(t *testing.T) {
	t.Parallel()

	l := NewNopLogger()
	l.Debug("msg", "k", "v")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg", "err", "boom")
}

func TestSlogLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Debug("debug message", "key", "value")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message", "err", "boom")

	out := buf.String()
	for _, want := range []string{"debug message", "info message", "warn message", "error message", "key=value", "err=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
