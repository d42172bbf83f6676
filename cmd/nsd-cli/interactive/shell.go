// Package interactive provides the interactive command-line interface of
// nsd-cli.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/nsd-bridge/nsd-go/pkg/bridge"
	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
)

// Shell drives a bridge from typed commands.
type Shell struct {
	b  *bridge.Bridge
	rl *readline.Instance

	closeOnce sync.Once
	closeErr  error
}

// New creates a shell. Attach must be called before events are printed.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "nsd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Attach sets the bridge the shell drives.
func (s *Shell) Attach(b *bridge.Bridge) {
	s.b = b
}

// Stdout returns a writer that properly coordinates with the readline input.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// HandleEvent prints a bridge event. It is the bridge's event sink.
func (s *Shell) HandleEvent(e bridge.Event) {
	fmt.Fprintln(s.rl.Stdout(), FormatEvent(e))
}

// Close releases the terminal. A pending Run returns.
func (s *Shell) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rl.Close()
	})
	return s.closeErr
}

// Run reads commands until quit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	s.printHelp()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return nil
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "browse", "b":
			s.cmdBrowse(args)
		case "stop":
			s.cmdStop(args)
		case "resolve", "r":
			s.cmdResolve(args)
		case "register", "reg":
			s.cmdRegister(args)
		case "unregister", "unreg":
			s.cmdUnregister(args)
		case "list", "ls":
			s.cmdList()
		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return nil
		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
DNS-SD Bridge Commands:
  browse <type> [handle]                    - Start discovery (e.g. browse _http._tcp)
  stop <handle>                             - Stop discovery
  resolve <name> <type> [handle]            - Resolve a service instance
  register <name> <type> <port> [key=val]…  - Publish a service
  unregister <handle>                       - Withdraw a published service
  list                                      - List active handles
  help                                      - Show this help
  quit                                      - Exit`)
}

// newHandle returns a short random handle.
func newHandle() string {
	return uuid.NewString()[:8]
}

func (s *Shell) report(op, handle string, err error) {
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%s %s failed: %s (%s)\n", op, handle, nsderr.MessageOf(err), nsderr.CauseOf(err))
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%s %s accepted\n", op, handle)
}

func (s *Shell) cmdBrowse(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: browse <type> [handle]")
		return
	}
	handle := handleArg(args, 1)
	s.report("browse", handle, s.b.StartDiscovery(handle, args[0]))
}

func (s *Shell) cmdStop(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: stop <handle>")
		return
	}
	s.report("stop", args[0], s.b.StopDiscovery(args[0]))
}

func (s *Shell) cmdResolve(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: resolve <name> <type> [handle]")
		return
	}
	handle := handleArg(args, 2)
	d := discovery.Descriptor{Name: args[0], Type: args[1]}
	s.report("resolve", handle, s.b.Resolve(handle, d))
}

func (s *Shell) cmdRegister(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: register <name> <type> <port> [key=value ...]")
		return
	}
	port, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid port: %s\n", args[2])
		return
	}

	d := discovery.Descriptor{
		Name: args[0],
		Type: args[1],
		Port: uint16(port),
		TXT:  txt.FromStrings(args[3:]),
	}
	handle := newHandle()
	s.report("register", handle, s.b.Register(handle, d))
}

func (s *Shell) cmdUnregister(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: unregister <handle>")
		return
	}
	s.report("unregister", args[0], s.b.Unregister(args[0]))
}

func (s *Shell) cmdList() {
	sessions := s.b.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No active handles")
		return
	}
	for _, info := range sessions {
		fmt.Fprintln(s.rl.Stdout(), FormatSession(info))
		for _, d := range info.Found {
			fmt.Fprintf(s.rl.Stdout(), "    %s\n", d)
		}
	}
}

func handleArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return newHandle()
}

// FormatEvent renders an event on one line.
func FormatEvent(e bridge.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Handle, e.Kind)

	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, ": %s (%s)", e.Err.Message, e.Err.Cause)
	case e.Kind == bridge.EventRegistrationSuccessful:
		fmt.Fprintf(&b, ": published as %q", e.Service.Name)
	case !e.Service.IsZero():
		fmt.Fprintf(&b, ": %s", e.Service)
	}
	return b.String()
}

// FormatSession renders a live handle on one line.
func FormatSession(info bridge.SessionInfo) string {
	line := fmt.Sprintf("%-8s %-12s %-13s", info.Handle, info.Kind, info.State)
	switch info.Kind {
	case bridge.OpDiscovery:
		line += fmt.Sprintf(" %s (%d found)", info.Service.Type, len(info.Found))
	default:
		line += " " + info.Service.String()
	}
	return strings.TrimRight(line, " ")
}
