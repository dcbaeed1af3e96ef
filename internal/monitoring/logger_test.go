package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("samples=%d", 3)
	if got != "samples=3" {
		t.Errorf("Logf wrote %q, want %q", got, "samples=3")
	}

	// nil installs a no-op logger
	got = ""
	SetLogger(nil)
	Logf("ignored")
	if got != "" {
		t.Errorf("no-op logger should not call previous logger, got %q", got)
	}
}

func TestComponent(t *testing.T) {
	defer SetLogger(nil)

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	logf := Component("inference")
	logf("run %d finished", 7)

	if len(lines) != 1 || lines[0] != "[inference] run 7 finished" {
		t.Errorf("unexpected log lines: %q", lines)
	}
}
