package log

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("unknown level accepted")
	}
}

func TestTextFormatter(t *testing.T) {
	f := &TextFormatter{DisableTimestamp: true}
	b, err := f.Format(&Entry{
		Level:     InfoLevel,
		Message:   "sample committed",
		Fields:    Fields{"service": "demo", "seq": 3},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	line := string(b)
	if !strings.HasPrefix(line, "INFO sample committed") {
		t.Fatalf("unexpected prefix: %q", line)
	}
	if !strings.Contains(line, "service=demo") || !strings.Contains(line, "seq=3") {
		t.Fatalf("fields missing: %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(WarnLevel),
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(&buf)),
	)
	l.Info("hidden")
	l.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info leaked through warn filter: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn entry lost: %q", out)
	}
}

func TestWithFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(&buf)),
	).WithComponent("publisher").With(Str("service", "demo"))

	l.Info("attached")
	out := buf.String()
	if !strings.Contains(out, "component=publisher") || !strings.Contains(out, "service=demo") {
		t.Fatalf("bound fields missing: %q", out)
	}
}
