package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSetupWriter(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   interface{}
	}{
		{"stdout output", Config{Output: "stdout"}, os.Stdout},
		{"stderr output", Config{Output: "stderr"}, os.Stderr},
		{"default output", Config{Output: ""}, os.Stdout},
		{"file output without filename", Config{Output: "file"}, os.Stdout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SetupWriter(tt.config); got != tt.want {
				t.Errorf("SetupWriter(%+v) = %v, want %v", tt.config, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Config{Level: "info", Format: "json", Output: "stdout"}
	log := NewLogger(cfg)
	if log == nil {
		t.Fatal("NewLogger returned nil")
	}
	log.Info("test message", "key", "value")
}

func TestGenerateJobRunID(t *testing.T) {
	id1 := GenerateJobRunID()
	id2 := GenerateJobRunID()

	if id1 == id2 {
		t.Error("GenerateJobRunID should generate unique IDs")
	}
	if !strings.HasPrefix(id1, "run_") {
		t.Errorf("job run id should start with 'run_', got: %s", id1)
	}
}

func TestWithJobRunID(t *testing.T) {
	ctx := WithJobRunID(context.Background(), "run-123")
	if got := JobRunIDFromContext(ctx); got != "run-123" {
		t.Errorf("expected run-123, got %s", got)
	}
}

func TestJobRunIDFromContextEmpty(t *testing.T) {
	if got := JobRunIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty string, got %s", got)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := WithJobRunID(context.Background(), "run-abc")
	tagged := FromContext(ctx, base)
	tagged.Info("attempt started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log JSON: %v", err)
	}
	if entry["job_run_id"] != "run-abc" {
		t.Errorf("expected job_run_id run-abc, got %v", entry["job_run_id"])
	}

	buf.Reset()
	untagged := FromContext(context.Background(), base)
	untagged.Info("no run id")
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log JSON: %v", err)
	}
	if _, exists := entry["job_run_id"]; exists {
		t.Error("job_run_id should not be present when not in context")
	}
}
