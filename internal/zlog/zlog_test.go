package zlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Zereker/duplex"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return out
}

func TestLogger_ImplementsDuplexLogger(t *testing.T) {
	var _ duplex.Logger = &Logger{}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "test", "loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "duplexd", "debug", "json")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 80}
	l.Info("client connected",
		"conn", "abc",
		"addr", addr,
		"count", 3,
		"wait", time.Second,
		"error", errors.New("boom"),
	)

	line := decodeLine(t, &buf)
	want := map[string]any{
		"message": "client connected",
		"level":   "info",
		"app":     "duplexd",
		"conn":    "abc",
		"addr":    "127.0.0.1:80",
		"count":   float64(3),
		"error":   "boom",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %v", k, line[k], v)
		}
	}
	if _, ok := line["wait"]; !ok {
		t.Error("duration field missing")
	}
}

func TestLogger_OddArgs(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(&buf, "t", "debug", "json")

	l.Warn("odd", "dangling")
	if line := decodeLine(t, &buf); line["!BADKEY"] != "dangling" {
		t.Errorf("line = %v", line)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(&buf, "t", "warn", "json")

	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("filtered levels were written: %s", buf.String())
	}

	l.Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("error not written: %s", buf.String())
	}
}

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(&buf, "t", "info", "console")

	l.Info("hello", "key", "value")
	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "key=") {
		t.Errorf("console output = %q", out)
	}
}

func TestWrap(t *testing.T) {
	var buf bytes.Buffer
	l := Wrap(zerolog.New(&buf).With().Str("component", "relay").Logger())

	l.Info("wrapped", "n", 3)

	out := decodeLine(t, &buf)
	if out["component"] != "relay" || out["message"] != "wrapped" || out["n"] != float64(3) {
		t.Errorf("output = %v", out)
	}

	buf.Reset()
	zl := l.Zerolog()
	zl.Warn().Msg("direct")
	if out := decodeLine(t, &buf); out["component"] != "relay" {
		t.Errorf("Zerolog() lost context: %v", out)
	}
}
