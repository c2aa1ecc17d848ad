package node

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/deixis/aptest/internal/config"
	"github.com/deixis/aptest/internal/runner"
	"github.com/rs/zerolog"
)

// recordingStarter starts real processes and remembers every spec and
// process so tests can check what was left running.
type recordingStarter struct {
	runner *runner.Runner

	mu    sync.Mutex
	specs []runner.Spec
	procs []*runner.Process
}

func newRecordingStarter(t *testing.T) *recordingStarter {
	t.Helper()
	return &recordingStarter{runner: &runner.Runner{Workspace: t.TempDir()}}
}

func (r *recordingStarter) Start(spec runner.Spec) (*runner.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	p, err := r.runner.Start(spec)
	if err == nil {
		r.procs = append(r.procs, p)
	}
	return p, err
}

func (r *recordingStarter) assertAllExited(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.procs {
		if !p.Exited() {
			t.Errorf("%s (pid %d) still running", p.Label, p.Pid)
			p.Terminate(0)
		}
	}
}

func (r *recordingStarter) labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.specs {
		out = append(out, s.Label)
	}
	return out
}

func testConfig() Config {
	return Config{
		ValidatorArgv:  []string{"sleep", "30"},
		FaucetArgv:     []string{"sleep", "30"},
		MintKeyTimeout: 5 * time.Second,
		GracePeriod:    time.Second,
		Log:            zerolog.Nop(),
	}
}

func TestStart_ValidatorAndFaucet(t *testing.T) {
	starter := newRecordingStarter(t)
	s, err := Start(context.Background(), starter, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := starter.labels(); !slices.Equal(got, []string{"validator", "faucet"}) {
		t.Errorf("spawn order = %v, want [validator faucet]", got)
	}
	if s.Validator() == nil || s.Faucet() == nil {
		t.Fatal("session is missing a process")
	}
	if s.Validator().Exited() || s.Faucet().Exited() {
		t.Fatal("process exited before Stop")
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	starter.assertAllExited(t)
}

func TestStart_SkipFaucet(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.SkipFaucet = true
	cfg.FaucetArgv = []string{"sleep", "30", config.MintKeyPlaceholder}

	s, err := Start(context.Background(), starter, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.Faucet() != nil {
		t.Error("faucet started with SkipFaucet set")
	}
	if got := starter.labels(); !slices.Equal(got, []string{"validator"}) {
		t.Errorf("spawned = %v, want [validator]", got)
	}
	if starter.specs[0].Tee != nil {
		t.Error("validator output watched although no faucet needs the key")
	}
}

func TestStop_Idempotent(t *testing.T) {
	starter := newRecordingStarter(t)
	s, err := Start(context.Background(), starter, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := s.Stop()
	second := s.Stop()
	if first != second {
		t.Errorf("second Stop = %v, first = %v", second, first)
	}
	starter.assertAllExited(t)

	v1, _ := s.Validator().Wait()
	s.Stop()
	v2, _ := s.Validator().Wait()
	if v1 != v2 {
		t.Errorf("validator status changed across Stop calls: %+v -> %+v", v1, v2)
	}
}

func TestStart_ValidatorSpawnFailure(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.ValidatorArgv = []string{"nonexistent-validator-xyz"}

	s, err := Start(context.Background(), starter, cfg)
	if err == nil {
		s.Stop()
		t.Fatal("expected error")
	}
	var startErr *StartError
	if !errors.As(err, &startErr) || startErr.Label != "validator" {
		t.Fatalf("error = %v, want *StartError for validator", err)
	}
	var spawnErr *runner.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Errorf("error = %v, want to wrap *runner.SpawnError", err)
	}
	if got := starter.labels(); !slices.Equal(got, []string{"validator"}) {
		t.Errorf("spawn attempts = %v, want only the validator", got)
	}
	starter.assertAllExited(t)
}

func TestStart_FaucetSpawnFailureStopsValidator(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.FaucetArgv = []string{"nonexistent-faucet-xyz"}

	_, err := Start(context.Background(), starter, cfg)
	var startErr *StartError
	if !errors.As(err, &startErr) || startErr.Label != "faucet" {
		t.Fatalf("error = %v, want *StartError for faucet", err)
	}
	starter.assertAllExited(t)
}

func TestStart_MintKeySubstitution(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.ValidatorArgv = []string{"sh", "-c", `echo 'Aptos root key path: "/tmp/aptest/mint.key"'; exec sleep 30`}
	cfg.FaucetArgv = []string{"sleep", "30", "--mint-key-file-path", config.MintKeyPlaceholder}

	s, err := Start(context.Background(), starter, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.MintKeyPath != "/tmp/aptest/mint.key" {
		t.Errorf("MintKeyPath = %q, want /tmp/aptest/mint.key", s.MintKeyPath)
	}
	faucetArgv := starter.specs[1].Argv
	if faucetArgv[len(faucetArgv)-1] != "/tmp/aptest/mint.key" {
		t.Errorf("faucet argv = %v, want mint key substituted", faucetArgv)
	}
	if slices.Contains(cfg.FaucetArgv, "/tmp/aptest/mint.key") {
		t.Error("Start modified the caller's faucet argv")
	}
}

func TestStart_MintKeyEmbeddedInArgument(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.ValidatorArgv = []string{"sh", "-c", `echo 'Aptos root key path: "/tmp/mint.key"'; exec sleep 30`}
	cfg.FaucetArgv = []string{"sleep", "30", "--mint-key-file-path=" + config.MintKeyPlaceholder}

	s, err := Start(context.Background(), starter, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.MintKeyPath != "/tmp/mint.key" {
		t.Errorf("MintKeyPath = %q, want /tmp/mint.key", s.MintKeyPath)
	}
	if starter.specs[0].Tee == nil {
		t.Error("validator output not watched for the root key")
	}
	faucetArgv := starter.specs[1].Argv
	if got := faucetArgv[len(faucetArgv)-1]; got != "--mint-key-file-path=/tmp/mint.key" {
		t.Errorf("faucet argument = %q, want mint key substituted", got)
	}
}

func TestStart_ValidatorExitsBeforeMintKey(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.ValidatorArgv = []string{"sh", "-c", "echo booting; exit 1"}
	cfg.FaucetArgv = []string{"sleep", "30", config.MintKeyPlaceholder}

	_, err := Start(context.Background(), starter, cfg)
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("error = %v, want *StartError", err)
	}
	if got := starter.labels(); !slices.Equal(got, []string{"validator"}) {
		t.Errorf("spawned = %v, faucet must not start without a key", got)
	}
	starter.assertAllExited(t)
}

func TestStart_MintKeyTimeout(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.MintKeyTimeout = 100 * time.Millisecond
	cfg.FaucetArgv = []string{"sleep", "30", config.MintKeyPlaceholder}

	_, err := Start(context.Background(), starter, cfg)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	starter.assertAllExited(t)
}

func TestStart_CancelledWhileWaitingForMintKey(t *testing.T) {
	starter := newRecordingStarter(t)
	cfg := testConfig()
	cfg.FaucetArgv = []string{"sleep", "30", config.MintKeyPlaceholder}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := Start(ctx, starter, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	starter.assertAllExited(t)
}
