package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHandler_InjectsAttrs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	tick := uint64(0)
	h := NewContextHandler(inner, func() []slog.Attr {
		return []slog.Attr{slog.Uint64("tick", tick), slog.String("mode", "idle")}
	})

	logger := slog.New(h)
	tick = 42
	logger.Info("sampled")

	out := buf.String()
	assert.Contains(t, out, "tick=42")
	assert.Contains(t, out, "mode=idle")
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewContextHandler(inner, nil))
	logger.Info("plain")

	assert.Contains(t, buf.String(), "plain")
}

func TestContextHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	h := NewContextHandler(inner, func() []slog.Attr {
		return []slog.Attr{slog.String("dynamic", "yes")}
	})

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("static", "also")}))
	logger.Info("both")

	out := buf.String()
	assert.Contains(t, out, "dynamic=yes")
	assert.Contains(t, out, "static=also")
}
