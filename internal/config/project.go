package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type moveManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

// readPackageName returns [package].name from root/Move.toml, or "" when
// the manifest does not exist.
func readPackageName(root string) (string, error) {
	path := filepath.Join(root, "Move.toml")
	var m moveManifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("parsing Move.toml: %w", err)
	}
	return m.Package.Name, nil
}

type aptosConfig struct {
	Profiles map[string]struct {
		Account string `yaml:"account"`
	} `yaml:"profiles"`
}

// readAccount returns the default profile account from
// root/.aptos/config.yaml, or "" when the file or profile is missing.
func readAccount(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, ".aptos", "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading .aptos/config.yaml: %w", err)
	}
	var cfg aptosConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("parsing .aptos/config.yaml: %w", err)
	}
	return cfg.Profiles["default"].Account, nil
}
