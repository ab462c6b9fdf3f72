package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: "info", Format: "console", Output: buf}).Info("listening")

	assert.Contains(t, buf.String(), "listening")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		logFunc func(*Logger)
		written bool
	}{
		{"debug", func(l *Logger) { l.Debug("m") }, true},
		{"info", func(l *Logger) { l.Debug("m") }, false},
		{"info", func(l *Logger) { l.Info("m") }, true},
		{"warn", func(l *Logger) { l.Info("m") }, false},
		{"warn", func(l *Logger) { l.Warn("m") }, true},
		{"error", func(l *Logger) { l.Warn("m") }, false},
		{"error", func(l *Logger) { l.Error("m") }, true},
		{"disabled", func(l *Logger) { l.Error("m") }, false},
		{"bogus", func(l *Logger) { l.Info("m") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(New(&Config{Level: tt.level, Output: buf}))
			assert.Equal(t, tt.written, buf.Len() > 0)
		})
	}
}

func TestLogger_IndependentLevels(t *testing.T) {
	quiet, loud := &bytes.Buffer{}, &bytes.Buffer{}
	q := New(&Config{Level: "error", Output: quiet})
	l := New(&Config{Level: "debug", Output: loud})

	q.DebugWith("query executed", nil)
	l.DebugWith("query executed", nil)

	assert.Zero(t, quiet.Len())
	assert.NotZero(t, loud.Len())
}

func TestLogger_ChildFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Output: buf}).With().
		Str("request_id", "r-1").
		Str("config", "warehouse").
		Logger()

	log.InfoWith("request completed", map[string]interface{}{"ok": true, "rows": 3})

	entry := decode(t, buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "r-1", entry["request_id"])
	assert.Equal(t, "warehouse", entry["config"])
	assert.Equal(t, true, entry["ok"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WarnAndErrorWith(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*Logger)
		level string
		err   interface{}
	}{
		{
			name:  "warn with error",
			log:   func(l *Logger) { l.WarnWith("query rejected", errors.New("DROP not allowed"), nil) },
			level: "warn",
			err:   "DROP not allowed",
		},
		{
			name:  "warn without error",
			log:   func(l *Logger) { l.WarnWith("slow lease", nil, map[string]interface{}{"waited": "2s"}) },
			level: "warn",
		},
		{
			name:  "error",
			log:   func(l *Logger) { l.ErrorWith("close failed", errors.New("broken pipe"), nil) },
			level: "error",
			err:   "broken pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.log(New(&Config{Level: "debug", Output: buf}))

			entry := decode(t, buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.err, entry["error"])
		})
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"postgres url", "postgres://app:hunter2@db:5432/events", "postgres://app:***@db:5432/events"},
		{"mysql dsn", "app:hunter2@tcp(db:3306)/shop?parseTime=true", "app:***@tcp(db:3306)/shop?parseTime=true"},
		{"key value", "host=db password=hunter2 sslmode=disable", "host=db password=*** sslmode=disable"},
		{"colon pair", "secret_key: abc123", "secret_key: ***"},
		{"sqlite path untouched", "/var/lib/app/shop.db", "/var/lib/app/shop.db"},
		{"plain text untouched", "connection refused", "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Mask(tt.in))
		})
	}
}

func TestLogger_MasksCredentials(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Output: buf}).With().
		Str("password", "hunter2").
		Logger()

	log.WarnWith("connect failed",
		errors.New(`dial postgres://app:hunter2@db:5432/events: refused`),
		map[string]interface{}{
			"secret_key": "minio-secret",
			"dsn":        "app:hunter2@tcp(db:3306)/shop",
			"cause":      errors.New("password=hunter2 rejected"),
		})

	assert.False(t, strings.Contains(buf.String(), "hunter2"), buf.String())
	assert.False(t, strings.Contains(buf.String(), "minio-secret"), buf.String())

	entry := decode(t, buf)
	assert.Equal(t, "***", entry["password"])
	assert.Equal(t, "***", entry["secret_key"])
	assert.Equal(t, "app:***@tcp(db:3306)/shop", entry["dsn"])
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.Info("ignored")
		log.ErrorWith("ignored", errors.New("x"), map[string]interface{}{"k": "v"})
		log.With().Str("k", "v").Logger().Debug("ignored")
	})
}

func BenchmarkLogger_InfoWith(b *testing.B) {
	log := New(&Config{Level: "info", Output: &bytes.Buffer{}})
	fields := map[string]interface{}{"kind": "execute_query", "rows": 10}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.InfoWith("request completed", fields)
	}
}
