package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	original := readBuildInfo
	t.Cleanup(func() { readBuildInfo = original })
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func stampVersion(t *testing.T, version, commit, date string) {
	t.Helper()
	originalVersion, originalCommit, originalDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = originalVersion, originalCommit, originalDate
	})
	Version, Commit, Date = version, commit, date
}

func TestStringIncludesBuildMetadata(t *testing.T) {
	stampVersion(t, "1.2.3", "abc123", "2026-02-18")

	got := String()
	require.Contains(t, got, "pinbridge 1.2.3")
	require.Contains(t, got, "commit=abc123")
	require.Contains(t, got, "date=2026-02-18")
	require.Contains(t, got, "go=")
}

func TestResolvedFallsBackToModuleVersion(t *testing.T) {
	stampVersion(t, "dev", "none", "unknown")
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v0.4.1"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}},
	})

	require.Equal(t, "v0.4.1", Resolved())
	require.Contains(t, String(), "commit=deadbeef")
}

func TestResolvedKeepsDevForLocalBuilds(t *testing.T) {
	stampVersion(t, "dev", "none", "unknown")
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	require.Equal(t, "dev", Resolved())

	stubBuildInfo(t, nil)
	require.Equal(t, "dev", Resolved())
	require.Contains(t, String(), "commit=none")
}
