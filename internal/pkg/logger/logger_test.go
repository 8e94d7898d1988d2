package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWritesJSONOutsideDevelopment(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	var buf bytes.Buffer
	Init(Config{Level: LogLevelInfo, Environment: "production", Output: &buf})

	LogInfo(context.Background(), "balance computed", "account_id", "abc", "balance", 7)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "balance computed" || line["account_id"] != "abc" || line["balance"] != float64(7) {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestFromContextPrefersAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("request_id", "req-1").Logger()
	ctx := WithContext(context.Background(), &l)

	LogError(ctx, errors.New("boom"), "query failed", 42, "ignored-key-type", "k", "v")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["request_id"] != "req-1" || line["error"] != "boom" || line["k"] != "v" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) != &log.Logger {
		t.Fatal("expected global logger for bare context")
	}
}
