package logging_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/crestkit/crestctl/internal/logging"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(logging.NewRedactingHandler(inner))
}

func TestRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf)

	log.Info("connecting",
		slog.String("host", "10.0.0.5"),
		slog.String("password", "hunter2"),
		slog.String("ssh_passphrase", "topsecret"),
		slog.String("api_token", "abc123"),
	)

	out := buf.String()
	for _, leaked := range []string{"hunter2", "topsecret", "abc123"} {
		if strings.Contains(out, leaked) {
			t.Errorf("credential %q leaked into log output", leaked)
		}
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("redaction placeholder missing")
	}
	if !strings.Contains(out, "10.0.0.5") {
		t.Error("non-sensitive attribute was dropped")
	}
}

func TestRedactsInsideGroups(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf)

	log.Info("auth",
		slog.Group("device",
			slog.String("user", "crestron"),
			slog.String("password", "swordfish"),
		),
	)

	out := buf.String()
	if strings.Contains(out, "swordfish") {
		t.Error("grouped credential leaked")
	}
	if !strings.Contains(out, "crestron") {
		t.Error("grouped non-sensitive attribute was dropped")
	}
}

func TestRedactsWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf).With(slog.String("session_token", "xyz"))

	log.Info("tick")

	if strings.Contains(buf.String(), "xyz") {
		t.Error("WithAttrs credential leaked")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelWarn,
		"":      slog.LevelWarn,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
