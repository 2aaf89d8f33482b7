package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	t.Setenv(EnvPath, "/etc/pinbridge/config.jsonc")
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, "/etc/pinbridge/config.jsonc", resolved)

	t.Setenv(EnvPath, "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "pinbridge", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "pinbridge", "config.jsonc"), resolved)
}

func TestLoadMissingDefaultConfigUsesDefaultsWithWarning(t *testing.T) {
	t.Setenv(EnvPath, "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	loaded, err := Load("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "pinbridge", "config.jsonc"), loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadMissingExplicitConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadExistingJSONCParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  "listen": {"port": 6001},
  "bridge": {
    "backend": "serial",
    "serial": {"device": "/dev/ttyACM0", "baud": 57600}
  }
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, 6001, loaded.Config.Listen.Port)
	require.Equal(t, "/dev/ttyACM0", loaded.Config.Bridge.Serial.Device)
	require.Equal(t, 57600, loaded.Config.Bridge.Serial.Baud)
	require.Equal(t, 100, loaded.Config.Bridge.Serial.ReadTimeoutMS)
}

func TestLoadImplicitPathUsesXDG(t *testing.T) {
	t.Setenv(EnvPath, "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	path := filepath.Join(xdg, "pinbridge", "config.jsonc")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(`{"bridge":{"backend":"sim"}}`), 0o600))

	loaded, err := Load("")
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, BackendSim, loaded.Config.Bridge.Backend)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}
