package main

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/deixis/aptest/internal/config"
	"github.com/spf13/pflag"
)

func TestParseRunFlags_Defaults(t *testing.T) {
	f, err := parseRunFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseRunFlags: %v", err)
	}
	rc := f.runConfig(&config.Config{})
	if rc.SkipCompile || rc.SkipPublish || rc.SkipFaucet || rc.LogToFile {
		t.Errorf("run config = %+v, want nothing skipped", rc)
	}
	if rc.StartDelay != config.DefaultStartDelay {
		t.Errorf("StartDelay = %s, want %s", rc.StartDelay, config.DefaultStartDelay)
	}
	if rc.IsInteractive() {
		t.Error("default run is interactive")
	}
}

func TestParseRunFlags_ShortFlags(t *testing.T) {
	f, err := parseRunFlags([]string{"-cpfil", "-d", "3"}, io.Discard)
	if err != nil {
		t.Fatalf("parseRunFlags: %v", err)
	}
	rc := f.runConfig(&config.Config{})
	if !rc.SkipCompile || !rc.SkipPublish || !rc.SkipFaucet || !rc.LogToFile {
		t.Errorf("run config = %+v, want every skip flag set", rc)
	}
	if !rc.IsInteractive() {
		t.Error("-i did not select interactive mode")
	}
	if rc.StartDelay != 3*time.Second {
		t.Errorf("StartDelay = %s, want 3s", rc.StartDelay)
	}
}

func TestParseRunFlags_ConfiguredDelay(t *testing.T) {
	cfg := &config.Config{RawStartDelay: "2s"}

	f, err := parseRunFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseRunFlags: %v", err)
	}
	if got := f.runConfig(cfg).StartDelay; got != 2*time.Second {
		t.Errorf("StartDelay = %s, want configured 2s", got)
	}

	f, err = parseRunFlags([]string{"--start-delay", "0"}, io.Discard)
	if err != nil {
		t.Fatalf("parseRunFlags: %v", err)
	}
	if got := f.runConfig(cfg).StartDelay; got != 0 {
		t.Errorf("StartDelay = %s, want explicit 0s", got)
	}
}

func TestParseRunFlags_Errors(t *testing.T) {
	if _, err := parseRunFlags([]string{"--bogus"}, io.Discard); err == nil {
		t.Error("expected error for unknown flag")
	}
	if _, err := parseRunFlags([]string{"extra"}, io.Discard); err == nil {
		t.Error("expected error for positional argument")
	}
	if _, err := parseRunFlags([]string{"-d", "-1"}, io.Discard); err == nil {
		t.Error("expected error for negative delay")
	}
	if _, err := parseRunFlags([]string{"-h"}, io.Discard); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("-h error = %v, want pflag.ErrHelp", err)
	}
}
