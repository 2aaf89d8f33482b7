package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe    Command = "serve"
	CommandSend     Command = "send"
	CommandDiscover Command = "discover"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:    {},
	CommandSend:     {},
	CommandDiscover: {},
	CommandDoctor:   {},
	CommandVersion:  {},
	CommandHelp:     {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Addr       string
	Payload    string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--addr":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return Parsed{}, errors.New("--addr requires HOST:PORT")
			}
			parsed.Addr = strings.TrimSpace(args[i])
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			if cmd == CommandSend {
				if i+1 >= len(args) {
					return Parsed{}, errors.New("send requires a JSON request argument")
				}
				i++
				parsed.Payload = args[i]
			}
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--addr HOST:PORT] <command>

Commands:
  serve          Run the TCP server in the foreground
  send JSON      Send one request line to a running server and print the reply
  discover       List pinbridge servers advertised over mDNS
  doctor         Run configuration, listener and bridge checks
  version        Print version information
  help           Show this help

Flags:
  --config PATH     Config file path (default: $PINBRIDGE_CONFIG, then $XDG_CONFIG_HOME/pinbridge/config.jsonc)
  --addr HOST:PORT  Server address for send (default: 127.0.0.1 and the configured port)
  -h, --help        Show help
  --version         Show version

Example:
  %[1]s send '{"cmd":"set_io","pin":"D2","value":"on"}'
`, binaryName)
}
