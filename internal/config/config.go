// Package config loads and validates the optional .aptest YAML file and
// the project metadata aptest reads from Move.toml and .aptos/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for run configuration.
const (
	DefaultStartDelay     = 14 * time.Second
	DefaultGracePeriod    = 5 * time.Second
	DefaultMintKeyTimeout = 30 * time.Second
	DefaultReadyTimeout   = 60 * time.Second
	DefaultLogFile        = "validator.log"
)

// Placeholders substituted into tool arguments at run time.
const (
	MintKeyPlaceholder = "{mint_key}"
	AccountPlaceholder = "{account}"
)

// Default tool invocations, matching a stock Aptos CLI install.
var (
	DefaultValidatorArgv = []string{"aptos-node", "--test"}
	DefaultFaucetArgv    = []string{
		"aptos-faucet",
		"--chain-id", "TESTING",
		"--mint-key-file-path", MintKeyPlaceholder,
		"--address", "0.0.0.0",
		"--port", "8000",
		"--server-url", "http://localhost:8080",
	}
	DefaultCompileArgv = []string{"aptos", "move", "compile"}
	DefaultFundArgv    = []string{
		"aptos", "account", "fund",
		"--faucet-url", "http://0.0.0.0:8000",
		"--account", AccountPlaceholder,
	}
	DefaultPublishArgv = []string{"aptos", "move", "publish", "--url", "http://0.0.0.0:8080"}
	DefaultTestArgv    = []string{"npm", "run", "test"}
)

// Config holds the parsed .aptest configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version        int           `yaml:"version"`
	RawStartDelay  string        `yaml:"start_delay"`  // e.g. "14s"
	RawGracePeriod string        `yaml:"grace_period"` // SIGTERM to SIGKILL
	RawStepTimeout string        `yaml:"step_timeout"` // bound on each build/test step
	LogFile        string        `yaml:"log_file"`     // relative to the project root
	ResultsDir     string        `yaml:"results_dir"`  // run results kept for inspection
	Ready          ReadyConfig   `yaml:"ready"`
	Validator      CommandConfig `yaml:"validator"`
	Faucet         FaucetConfig  `yaml:"faucet"`
	Compile        CommandConfig `yaml:"compile"`
	Fund           CommandConfig `yaml:"fund"`
	Publish        CommandConfig `yaml:"publish"`
	Test           CommandConfig `yaml:"test"`
}

// CommandConfig overrides one external tool invocation.
type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// FaucetConfig overrides the faucet invocation.
type FaucetConfig struct {
	CommandConfig     `yaml:",inline"`
	RawMintKeyTimeout string `yaml:"mint_key_timeout"`
}

// ReadyConfig enables an HTTP readiness poll in place of the fixed start
// delay. An empty URL keeps the fixed delay.
type ReadyConfig struct {
	URL        string `yaml:"url"`
	RawTimeout string `yaml:"timeout"`
}

// argv returns the configured invocation, or def when no command is set.
// Args are only honoured together with a command.
func (c CommandConfig) argv(def []string) []string {
	if c.Command == "" {
		return slices.Clone(def)
	}
	return append([]string{c.Command}, c.Args...)
}

func (c *Config) ValidatorArgv() []string { return c.Validator.argv(DefaultValidatorArgv) }
func (c *Config) FaucetArgv() []string { return c.Faucet.argv(DefaultFaucetArgv) }
func (c *Config) CompileArgv() []string { return c.Compile.argv(DefaultCompileArgv) }
func (c *Config) FundArgv() []string { return c.Fund.argv(DefaultFundArgv) }
func (c *Config) PublishArgv() []string { return c.Publish.argv(DefaultPublishArgv) }
func (c *Config) TestArgv() []string { return c.Test.argv(DefaultTestArgv) }

// StartDelay returns the configured start delay or the default.
func (c *Config) StartDelay() time.Duration {
	return parseDuration(c.RawStartDelay, DefaultStartDelay, true)
}

// GracePeriod returns the configured termination grace period or the default.
func (c *Config) GracePeriod() time.Duration {
	return parseDuration(c.RawGracePeriod, DefaultGracePeriod, true)
}

// StepTimeout returns the configured step timeout; zero means unbounded.
func (c *Config) StepTimeout() time.Duration {
	return parseDuration(c.RawStepTimeout, 0, false)
}

// MintKeyTimeout returns how long the faucet waits for the validator to
// announce its root key.
func (c *Config) MintKeyTimeout() time.Duration {
	return parseDuration(c.Faucet.RawMintKeyTimeout, DefaultMintKeyTimeout, false)
}

// ReadyTimeout returns the bound on the readiness poll.
func (c *Config) ReadyTimeout() time.Duration {
	return parseDuration(c.Ready.RawTimeout, DefaultReadyTimeout, false)
}

// LogPath returns the validator log path, resolved against root.
func (c *Config) LogPath(root string) string {
	name := c.LogFile
	if name == "" {
		name = DefaultLogFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(root, name)
}

// ResultsPath returns the run results directory resolved against root, or
// "" when none is configured and results go to a temp directory.
func (c *Config) ResultsPath(root string) string {
	if c.ResultsDir == "" || filepath.IsAbs(c.ResultsDir) {
		return c.ResultsDir
	}
	return filepath.Join(root, c.ResultsDir)
}

// parseDuration parses raw, returning def when raw is empty or invalid.
// Zero is only accepted when allowZero is set.
func parseDuration(raw string, def time.Duration, allowZero bool) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return def
	}
	return d
}

// LoadResult holds the parsed config and what was discovered about the
// Move project around it.
type LoadResult struct {
	Config      *Config
	ProjectRoot string // directory containing Move.toml; falls back to workspace
	Package     string // [package].name from Move.toml, if any
	Account     string // default profile account from .aptos/config.yaml, if any
}

// Load reads the .aptest file from the project root.
// The project root is discovered by walking upward from workspace
// looking for Move.toml. If no .aptest file exists, a default Config is
// returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findProjectRoot(workspace)
	if err != nil {
		// No Move.toml found; use workspace as root.
		root = workspace
	}

	res := &LoadResult{Config: &Config{}, ProjectRoot: root}

	data, err := os.ReadFile(filepath.Join(root, ".aptest"))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, res.Config); err != nil {
			return nil, fmt.Errorf("parsing .aptest: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading .aptest: %w", err)
	}

	if res.Package, err = readPackageName(root); err != nil {
		return nil, err
	}
	if res.Account, err = readAccount(root); err != nil {
		return nil, err
	}
	return res, nil
}

// findProjectRoot walks upward from dir looking for a directory
// containing Move.toml.
func findProjectRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "Move.toml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("Move.toml not found")
		}
		dir = parent
	}
}
