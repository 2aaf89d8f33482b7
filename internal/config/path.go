package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvPath names an environment variable that overrides the default location.
const EnvPath = "PINBRIDGE_CONFIG"

// ResolvePath picks the config location: the --config flag, then
// $PINBRIDGE_CONFIG, then XDG_CONFIG_HOME, then ~/.config.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	if env := strings.TrimSpace(os.Getenv(EnvPath)); env != "" {
		return env, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "pinbridge", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "pinbridge", "config.jsonc"), nil
}
