package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/pinbridge.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/pinbridge.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     string
		wantCmd     Command
		wantHelp    bool
		wantPath    string
		wantAddr    string
		wantPayload string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "version flag",
			args:     []string{"--version"},
			wantCmd:  CommandVersion,
			wantHelp: false,
		},
		{
			name:    "config after command",
			args:    []string{"serve", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:    "missing addr",
			args:    []string{"--addr", " "},
			wantErr: "requires HOST:PORT",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "send without payload",
			args:    []string{"send"},
			wantErr: "requires a JSON request",
		},
		{
			name:    "send with two payloads",
			args:    []string{"send", `{"cmd":"get_io","pin":"D2"}`, "{}"},
			wantErr: "unexpected arguments",
		},
		{
			name:     "serve with config",
			args:     []string{"--config", "/tmp/cfg", "serve"},
			wantCmd:  CommandServe,
			wantPath: "/tmp/cfg",
		},
		{
			name:        "send with addr",
			args:        []string{"--addr", "10.0.0.5:6000", "send", `{"cmd":"get_io","pin":"D2"}`},
			wantCmd:     CommandSend,
			wantAddr:    "10.0.0.5:6000",
			wantPayload: `{"cmd":"get_io","pin":"D2"}`,
		},
		{
			name:    "discover",
			args:    []string{"discover"},
			wantCmd: CommandDiscover,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantAddr, parsed.Addr)
			require.Equal(t, tc.wantPayload, parsed.Payload)
		})
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("pinbridge")
	require.Contains(t, text, "serve")
	require.Contains(t, text, "send JSON")
	require.Contains(t, text, "discover")
	require.Contains(t, text, "doctor")
	require.Contains(t, text, "--config PATH")
	require.Contains(t, text, "--addr HOST:PORT")
}
