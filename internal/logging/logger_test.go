package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSetAndGetLogger(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	customLogger := slog.New(slog.NewJSONHandler(&buf, nil))

	SetLogger(customLogger)

	if Logger() != customLogger {
		t.Error("Logger() did not return the logger set by SetLogger()")
	}
}

func TestSetOutput(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("dashboard loaded", "user_id", "3ABCD")

	output := buf.String()
	if !strings.Contains(output, "dashboard loaded") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, `"user_id":"3ABCD"`) {
		t.Errorf("expected output to contain user_id field, got: %s", output)
	}
}

func TestConfigure(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	tests := []struct {
		name     string
		format   string
		level    string
		logDebug bool
		contains string
	}{
		{"json info drops debug", "json", "info", false, `"msg":"visible"`},
		{"text debug keeps debug", "text", "debug", true, "msg=hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Configure(&buf, tt.format, tt.level)

			Debug("hidden")
			Info("visible")

			out := buf.String()
			if !strings.Contains(out, tt.contains) {
				t.Errorf("expected %q in output, got: %s", tt.contains, out)
			}
			if !tt.logDebug && strings.Contains(out, "hidden") {
				t.Errorf("debug record should be filtered at level %s", tt.level)
			}
		})
	}
}

func TestConfigure_Redacts(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	Configure(&buf, "json", "info")

	Info("unlock", "wallet_password", "hunter2")

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("password leaked into log output: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFieldHelpers(t *testing.T) {
	if a := UserID("3ABCD"); a.Key != "user_id" || a.Value.String() != "3ABCD" {
		t.Errorf("UserID attr mismatch: %v", a)
	}
	if a := Action("stake"); a.Key != "action" {
		t.Errorf("Action attr key mismatch: %s", a.Key)
	}
	if a := Err(nil); a.Value.String() != "" {
		t.Errorf("Err(nil) should be empty, got %q", a.Value.String())
	}
	if a := Err(errors.New("boom")); a.Value.String() != "boom" {
		t.Errorf("Err value mismatch: %q", a.Value.String())
	}
}

func TestAudit(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetOutput(&buf)

	Audit(AuditEvent{
		Operation: "stake",
		Actor:     "0x1234",
		Target:    "3ABCD",
		Result:    "success",
	})

	out := buf.String()
	for _, want := range []string{`"audit":true`, `"operation":"stake"`, `"result":"success"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in audit output, got: %s", want, out)
		}
	}
}
