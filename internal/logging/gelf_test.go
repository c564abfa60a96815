package logging

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gelfListener(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// decodeGELF unwraps the optional gzip/zlib compression the writer
// applies and parses the JSON payload.
func decodeGELF(t *testing.T, datagram []byte) map[string]any {
	t.Helper()

	var reader io.Reader = bytes.NewReader(datagram)
	switch {
	case len(datagram) > 1 && datagram[0] == 0x1f && datagram[1] == 0x8b:
		gz, err := gzip.NewReader(reader)
		require.NoError(t, err)
		defer gz.Close()
		reader = gz
	case len(datagram) > 0 && datagram[0] == 0x78:
		zr, err := zlib.NewReader(reader)
		require.NoError(t, err)
		defer zr.Close()
		reader = zr
	}

	var msg map[string]any
	require.NoError(t, json.NewDecoder(reader).Decode(&msg))
	return msg
}

func readDatagram(t *testing.T, conn net.PacketConn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 8192)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestGelfHandler(t *testing.T) {
	conn := gelfListener(t)

	h, err := NewGelfHandler(conn.LocalAddr().String(), "sim-host", slog.LevelInfo)
	require.NoError(t, err)
	defer h.Close()

	slog.New(h).Info("vehicle armed", "component", "sim")

	msg := decodeGELF(t, readDatagram(t, conn))
	assert.Equal(t, "vehicle armed", msg["short_message"])
	assert.Equal(t, "sim-host", msg["host"])
	assert.EqualValues(t, gelfInfo, msg["level"])
	assert.Equal(t, "sim", msg["_component"])
	assert.Greater(t, msg["timestamp"], 0.0)
}

func TestGelfHandler_GroupedAttrs(t *testing.T) {
	conn := gelfListener(t)

	h, err := NewGelfHandler(conn.LocalAddr().String(), "sim-host", slog.LevelInfo)
	require.NoError(t, err)
	defer h.Close()

	logger := slog.New(h).WithGroup("sim").With("tick", 7)
	logger.Warn("mode changed", "mode", "navigate_to")

	msg := decodeGELF(t, readDatagram(t, conn))
	assert.EqualValues(t, gelfWarning, msg["level"])
	assert.EqualValues(t, 7, msg["_sim.tick"])
	assert.Equal(t, "navigate_to", msg["_sim.mode"])
}

func TestGelfHandler_LevelFilter(t *testing.T) {
	h, err := NewGelfHandler("127.0.0.1:12201", "sim-host", slog.LevelWarn)
	require.NoError(t, err)
	defer h.Close()

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestGelfLevelMapping(t *testing.T) {
	assert.EqualValues(t, gelfDebug, gelfLevel(slog.LevelDebug))
	assert.EqualValues(t, gelfInfo, gelfLevel(slog.LevelInfo))
	assert.EqualValues(t, gelfWarning, gelfLevel(slog.LevelWarn))
	assert.EqualValues(t, gelfError, gelfLevel(slog.LevelError))
}
