package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})

	t.Run("Levels", func(t *testing.T) {
		for _, fn := range []func(string, ...any){logger.Debug, logger.Info, logger.Warn, logger.Error, logger.Critical} {
			buf.Reset()
			fn("level msg")
			if !strings.Contains(buf.String(), "level msg") {
				t.Errorf("missing message in %q", buf.String())
			}
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		defer logger.SetLevel(LevelDebug)
		if logger.GetLevel() != LevelError {
			t.Error("SetLevel failed")
		}

		buf.Reset()
		logger.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("Logged info message when level was Error")
		}

		logger.Critical("rollback failed")
		if !strings.Contains(buf.String(), `"level":"CRITICAL"`) {
			t.Errorf("critical not rendered: %s", buf.String())
		}
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("deploy").Info("msg")
		if !strings.Contains(buf.String(), "deploy") {
			t.Error("WithComponent missing component field")
		}
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		logger.WithFields(map[string]any{"router": "r1"}).Info("msg")
		if !strings.Contains(buf.String(), "router") || !strings.Contains(buf.String(), "r1") {
			t.Error("WithFields missing fields")
		}
	})

	t.Run("AuditIgnoresLevel", func(t *testing.T) {
		logger.SetLevel(LevelCritical)
		defer logger.SetLevel(LevelDebug)

		buf.Reset()
		logger.Audit("deploy", "deployment:42", map[string]any{"state": "succeed"})
		logStr := buf.String()
		if !strings.Contains(logStr, "AUDIT") || !strings.Contains(logStr, "deployment:42") {
			t.Errorf("Audit log incomplete: %s", logStr)
		}
	})
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.WithComponent("Orchestrator").Critical("rollback failed", "router", "r1", "error", "connection refused")

	line := buf.String()
	for _, want := range []string{"[critical]", "orchestrator: rollback failed", "router=r1", `error="connection refused"`} {
		if !strings.Contains(line, want) {
			t.Errorf("console line %q missing %q", line, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"": LevelInfo, "debug": LevelDebug, "WARN": LevelWarn, "critical": LevelCritical}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel accepted an unknown level")
	}
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default logger is nil")
	}

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	SetDefault(New(cfg))

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	Critical("critical")
	WithComponent("comp").Info("comp msg")

	if buf.Len() == 0 {
		t.Error("Default logger captured no output")
	}
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if data["msg"] != "json test" {
		t.Error("JSON msg field incorrect")
	}
	if data["key"] != "value" {
		t.Error("JSON extra field incorrect")
	}
	if data["level"] != "INFO" {
		t.Error("JSON level incorrect")
	}
}
