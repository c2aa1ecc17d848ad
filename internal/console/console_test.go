package console

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrinter_PlainWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.Info("Starting local validator node...")
	p.Failure("Compilation failed, exiting early...")

	out := buf.String()
	if !strings.Contains(out, "Starting local validator node...") {
		t.Errorf("output = %q, want info banner", out)
	}
	if !strings.Contains(out, "Compilation failed") {
		t.Errorf("output = %q, want failure banner", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("output = %q, want no ANSI codes for a non-terminal writer", out)
	}
}

func TestPrinter_NilIsSilent(t *testing.T) {
	var p *Printer
	p.Info("Starting local validator node...")
	p.Success("Done")
	p.Failure("Error: %v", "boom")
	(&Printer{}).Info("nothing")
}
