package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSKHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		invID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			invID:   "20240615T143045Z",
			level:   slog.LevelInfo,
			message: "backup created",
			want:    "2024-06-15T14:30:45Z\tINFO\t20240615T143045Z\tbackup created\n",
		},
		{
			name:    "debug level",
			invID:   "inv-2",
			level:   slog.LevelDebug,
			message: "artifact copied off-site",
			want:    "2024-06-15T14:30:45Z\tDEBUG\tinv-2\tartifact copied off-site\n",
		},
		{
			name:    "with record attrs",
			invID:   "inv-3",
			level:   slog.LevelInfo,
			message: "cleanup finished",
			attrs:   []slog.Attr{slog.Int("expired", 2), slog.Int("removed", 1)},
			want:    "2024-06-15T14:30:45Z\tINFO\tinv-3\tcleanup finished\texpired=2\tremoved=1\n",
		},
		{
			name:    "group attr is flattened",
			invID:   "inv-4",
			level:   slog.LevelWarn,
			message: "permission denied",
			attrs:   []slog.Attr{slog.Group("req", slog.String("agent", "sk/backup"))},
			want:    "2024-06-15T14:30:45Z\tWARN\tinv-4\tpermission denied\treq.agent=sk/backup\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &skHandler{w: &buf, invID: tt.invID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestSKHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &skHandler{w: &buf, invID: "inv-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "vault")}).(*skHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=vault") {
		t.Errorf("expected pre-set attr component=vault, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestSKHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&skHandler{w: &buf, invID: "inv-1"})

	logger.WithGroup("backup").With("type", "logs").Info("backup skipped", "root", "/var/log/app")

	got := buf.String()
	if !strings.Contains(got, "\tbackup.type=logs") || !strings.Contains(got, "\tbackup.root=/var/log/app") {
		t.Errorf("expected grouped keys, got: %q", got)
	}
}

func TestSKHandler_Enabled(t *testing.T) {
	all := &skHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !all.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}

	warn := &skHandler{level: slog.LevelWarn}
	if warn.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled(INFO) = true for a WARN handler")
	}
	if !warn.Enabled(context.Background(), slog.LevelError) {
		t.Error("Enabled(ERROR) = false for a WARN handler")
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, f, err := newLogger(dir, "inv-1", &console, slog.LevelWarn)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Debug("artifact copied off-site")
	logger.Warn("permission denied", "user", "analyst")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("log file lines = %d, want 2:\n%s", lines, data)
	}
	if got := console.String(); strings.Contains(got, "artifact copied") || !strings.Contains(got, "user=analyst") {
		t.Errorf("console = %q, want only the warning", got)
	}
}
