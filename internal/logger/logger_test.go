package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// captureOutput redirects logger output to a buffer (text, INFO, no color)
// and returns a cleanup function restoring the previous destination.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")
	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		currentFormat.Store("text")
		reconfigure()
	}

	return buf, cleanup
}

func decodeJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry), "output: %s", buf.String())
	return entry
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"debug message", "info message", "warn message", "error message"}, nil},
		{"INFO", []string{"info message", "warn message", "error message"}, []string{"debug message"}},
		{"WARN", []string{"warn message", "error message"}, []string{"debug message", "info message"}},
		{"ERROR", []string{"error message"}, []string{"debug message", "info message", "warn message"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf, cleanup := captureOutput()
			defer cleanup()

			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DeBuG")
		Debug("visible")
		assert.Contains(t, buf.String(), "visible")
		assert.True(t, IsDebug())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetLevel("VERBOSE")
		Debug("debug message")
		Info("info message")

		assert.NotContains(t, buf.String(), "debug message")
		assert.Contains(t, buf.String(), "info message")
		assert.False(t, IsDebug())
	})

	t.Run("ParseLevel", func(t *testing.T) {
		l, ok := ParseLevel("warning")
		assert.True(t, ok)
		assert.Equal(t, LevelWarn, l)

		_, ok = ParseLevel("trace")
		assert.False(t, ok)
	})
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

// ============================================================================
// Text Handler Tests
// ============================================================================

func TestTextFormatting(t *testing.T) {
	t.Run("TimestampAndLevel", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("link created")

		assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[INFO\] link created`, buf.String())
	})

	t.Run("StructuredFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("rpc call", KeyXID, uint32(7), KeyHost, "10.0.0.5", KeyDurationMs, 1.5)

		out := buf.String()
		assert.Contains(t, out, "xid=7")
		assert.Contains(t, out, "host=10.0.0.5")
		assert.Contains(t, out, "duration_ms=1.500")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("remote error", KeyError, "device locked by another link", "empty", "")

		out := buf.String()
		assert.Contains(t, out, `error="device locked by another link"`)
		assert.Contains(t, out, `empty=""`)
	})

	t.Run("GroupsAndPreboundAttrs", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		l := With(KeyHost, "scope").WithGroup("link")
		l.Info("state", "id", 3, slog.Group("server", "port", 1024))

		out := buf.String()
		assert.Contains(t, out, "host=scope")
		assert.Contains(t, out, "link.id=3")
		assert.Contains(t, out, "link.server.port=1024")
	})

	t.Run("ColorWrapsLevelAndKeys", func(t *testing.T) {
		var buf bytes.Buffer
		h := NewColorTextHandler(&buf, nil, true)
		slog.New(h).Warn("slow reply", "xid", 1)

		out := buf.String()
		assert.Contains(t, out, colorYellow+"WARN"+colorReset)
		assert.Contains(t, out, colorCyan+"xid"+colorReset+"=1")
	})

	t.Run("EmptyAttrSkipped", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("ok", Err(nil))
		assert.NotContains(t, buf.String(), "error")
	})
}

// ============================================================================
// JSON Format Tests
// ============================================================================

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	Info("device_read done", KeyBytes, 42, KeyReason, "0x04")

	entry := decodeJSONLine(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "device_read done", entry["msg"])
	assert.Equal(t, float64(42), entry["bytes"])
	assert.Equal(t, "0x04", entry["reason"])
	assert.Contains(t, entry, "time")

	buf.Reset()
	SetFormat("xml")
	Info("still json")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

// ============================================================================
// Context Logging Tests
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()
		SetFormat("json")

		lc := NewLogContext("10.0.0.5", "inst0").
			WithOperation("device_write").
			WithLink(0, 1234).
			WithTrace("abc123", "xyz789")
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "chunk sent", KeyChunk, 2)

		entry := decodeJSONLine(t, buf)
		assert.Equal(t, "abc123", entry["trace_id"])
		assert.Equal(t, "xyz789", entry["span_id"])
		assert.Equal(t, "10.0.0.5", entry["host"])
		assert.Equal(t, "inst0", entry["device"])
		assert.Equal(t, "device_write", entry["operation"])
		assert.Equal(t, float64(0), entry["link_id"], "link id 0 is valid once linked")
		assert.Equal(t, float64(1234), entry["client_id"])
		assert.Equal(t, float64(2), entry["chunk"])
	})

	t.Run("UnlinkedContextOmitsLinkID", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()
		SetFormat("json")

		ctx := WithContext(context.Background(), NewLogContext("h", "inst0"))
		WarnCtx(ctx, "x")

		entry := decodeJSONLine(t, buf)
		assert.NotContains(t, entry, "link_id")
	})

	t.Run("ContextWithoutLogContext", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		require.NotPanics(t, func() {
			InfoCtx(context.Background(), "test message")
			//nolint:staticcheck // nil context must be tolerated
			ErrorCtx(nil, "nil context")
		})

		assert.Contains(t, buf.String(), "test message")
		assert.Contains(t, buf.String(), "nil context")
	})
}

func TestLogContext(t *testing.T) {
	t.Run("Clone", func(t *testing.T) {
		lc := NewLogContext("h", "inst0").WithOperation("device_read")
		clone := lc.Clone()
		clone.Operation = "device_write"

		assert.Equal(t, "device_read", lc.Operation)
		assert.False(t, clone.StartTime.IsZero())
	})

	t.Run("NilSafe", func(t *testing.T) {
		var lc *LogContext
		assert.Nil(t, lc.Clone())
		assert.Nil(t, lc.WithOperation("x"))
		assert.Nil(t, lc.WithLink(1, 2))
		assert.Zero(t, lc.DurationMs())
	})

	t.Run("DurationMs", func(t *testing.T) {
		assert.GreaterOrEqual(t, NewLogContext("h", "d").DurationMs(), 0.0)
	})
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, "0x0607af", Program(0x0607AF).Value.String())
	assert.Equal(t, "0x04", Reason(0x04).Value.String())
	assert.Equal(t, "0x88", Flags(0x88).Value.String())
	assert.Equal(t, "0a0b", Record([]byte{0x0a, 0x0b}).Value.String())
	assert.Equal(t, KeyLinkID, LinkID(5).Key)

	assert.Equal(t, "", Err(nil).Key)
	errAttr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, errAttr.Key)
	assert.Equal(t, "boom", errAttr.Value.String())
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 10 {
				Info("concurrent", "goroutine", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 200)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "["), "interleaved line: %q", line)
	}
}

// ============================================================================
// Init Tests
// ============================================================================

func TestInit(t *testing.T) {
	t.Run("InitWithWriter", func(t *testing.T) {
		buf := new(bytes.Buffer)
		InitWithWriter(buf, "DEBUG", "text", false)
		t.Cleanup(func() { InitWithWriter(os.Stderr, "INFO", "text", false) })

		Debug("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("InitWithFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vxi11.log")
		require.NoError(t, Init(Config{Level: "INFO", Format: "json", Output: path}))
		t.Cleanup(func() {
			require.NoError(t, Init(Config{Output: "stderr", Format: "text"}))
		})

		Info("to file", KeyHost, "scope")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"host":"scope"`)
	})

	t.Run("InitWithBadPath", func(t *testing.T) {
		err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open log file")
	})

	t.Run("InitWithEmptyConfig", func(t *testing.T) {
		require.NoError(t, Init(Config{}))
	})
}

// ============================================================================
// Benchmark Tests
// ============================================================================

func BenchmarkLogDisabled(b *testing.B) {
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "ERROR", "text", false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Debug("test message", KeyXID, uint32(i))
	}
}

func BenchmarkLogText(b *testing.B) {
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "DEBUG", "text", false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("test message", KeyXID, uint32(i), KeyBytes, 128)
	}
}

func BenchmarkLogCtx(b *testing.B) {
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "DEBUG", "json", false)

	ctx := WithContext(context.Background(), NewLogContext("10.0.0.5", "inst0").WithLink(1, 2))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InfoCtx(ctx, "test message", KeyChunk, i)
	}
}
