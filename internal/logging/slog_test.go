package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", &buf)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		kv    string
	}{
		{"DEBUG", "dbg", "a=1"},
		{"INFO", "inf", "b=2"},
		{"WARN", "wrn", "c=3"},
		{"ERROR", "err", "d=4"},
	}

	for _, tc := range tests {
		if !strings.Contains(out, "level="+tc.level) {
			t.Fatalf("expected level=%s in output:\n%s", tc.level, out)
		}
		if !strings.Contains(out, "msg="+tc.msg) {
			t.Fatalf("expected msg=%s in output:\n%s", tc.msg, out)
		}
		if !strings.Contains(out, tc.kv) {
			t.Fatalf("expected %s in output:\n%s", tc.kv, out)
		}
	}
}

func TestNew_LevelFiltersAndFallsBack(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", &buf)
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn level not applied:\n%s", buf.String())
	}

	buf.Reset()
	log = New("verbose", &buf)
	log.Debug(context.Background(), "dropped")
	log.Info(context.Background(), "kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unknown level should fall back to info:\n%s", buf.String())
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", &buf).With("component", "session", "user", "alice")
	log.Info(context.Background(), "hello", "k", "v")

	for _, s := range []string{"msg=hello", "component=session", "user=alice", "k=v"} {
		if !strings.Contains(buf.String(), s) {
			t.Fatalf("expected %q in output, got:\n%s", s, buf.String())
		}
	}
}

func TestDiscard_DoesNotPanic(t *testing.T) {
	log := Discard()
	log.Error(context.TODO(), "nothing")
	log.With("a", 1).Info(context.TODO(), "nothing")
}
