package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line as JSON: %v\nLine: %s", err, line)
		}
		out = append(out, entry)
	}
	return out
}

// TestLogger_IncludesPipelineFields verifies pipeline fields are present in log output.
func TestLogger_IncludesPipelineFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.WithPipeline(PipelineMeta{Name: "thumbs", Mount: "/img", Store: "images"}).
		Info(context.Background(), "served")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["pipeline.name"] != "thumbs" {
		t.Errorf("pipeline.name = %v", e["pipeline.name"])
	}
	if e["pipeline.mount"] != "/img" {
		t.Errorf("pipeline.mount = %v", e["pipeline.mount"])
	}
	if e["pipeline.store"] != "images" {
		t.Errorf("pipeline.store = %v", e["pipeline.store"])
	}
	if e["msg"] != "served" || e["level"] != "info" {
		t.Errorf("unexpected msg/level: %v", e)
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_OmitsEmptyMountAndStore(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).WithPipeline(PipelineMeta{Name: "p"}).Info(context.Background(), "x")

	e := decodeLines(t, &buf)[0]
	if _, ok := e["pipeline.mount"]; ok {
		t.Error("pipeline.mount should be omitted")
	}
	if _, ok := e["pipeline.store"]; ok {
		t.Error("pipeline.store should be omitted")
	}
}

// TestLogger_LevelFiltering verifies entries below the configured level are dropped.
func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Errorf("unexpected levels: %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

// TestLogger_RedactsSensitiveFields verifies sensitive keys never reach the output.
func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf).With(F("DSN", "user:pw@tcp(db)/x"))

	logger.Info(context.Background(), "connect", F("password", "hunter2"), F("table", "images"))

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "user:pw") {
		t.Fatalf("secret leaked: %s", out)
	}
	e := decodeLines(t, &buf)[0]
	if e["password"] != "[REDACTED]" {
		t.Errorf("password = %v", e["password"])
	}
	if e["table"] != "images" {
		t.Errorf("table = %v", e["table"])
	}
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithWriter("info", &buf)
	_ = parent.With(F("child", true))

	parent.Info(context.Background(), "parent")
	if _, ok := decodeLines(t, &buf)[0]["child"]; ok {
		t.Error("child field leaked into parent logger")
	}
}

func TestErrField(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Errorf("Err(nil) = %+v", f)
	}
	if f := Err(ErrNoData); f.Value != ErrNoData.Error() {
		t.Errorf("Err(ErrNoData) = %+v", f)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"bogus": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	l.Info(context.Background(), "discarded")
	if l.With(F("a", 1)) == nil || l.WithPipeline(PipelineMeta{}) == nil {
		t.Fatal("nop logger must return itself")
	}
}
