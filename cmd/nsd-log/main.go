// Command nsd-log views and analyzes protocol log files written by the
// discovery bridge.
//
// Log files are created when nsd-bridge or nsd-cli run with the
// -protocol-log flag (or protocol_log in the config file).
//
// Usage:
//
//	nsd-log <command> [flags] <file.nlog>
//
// Examples:
//
//	# View only engine callbacks of one handle
//	nsd-log view -layer engine -handle h1 bridge.nlog
//
//	# Keep the outgoing messages in a new file
//	nsd-log filter -direction out -o out.nlog bridge.nlog
//
//	# Export to CSV
//	nsd-log export -format csv bridge.nlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nsd-bridge/nsd-go/cmd/nsd-log/commands"
)

const usage = `nsd-log - DNS-SD Bridge Protocol Log Analyzer

Usage:
  nsd-log <command> [flags] <file.nlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "nsd-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name, summary, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "nsd-log %s - %s\n\nUsage:\n  nsd-log %s %s\n\nFlags:\n", name, summary, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// filterFlags registers the filter flags shared by view and filter.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.SessionID, "session", "", "Filter by bridge session ID")
	fs.StringVar(&opts.Handle, "handle", "", "Filter by client handle")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (wire, bridge, engine)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, callback, state, error)")
	return opts
}

func logPath(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "View log file in human-readable format", "[flags] <file.nlog>")
	opts := filterFlags(fs)

	path, err := logPath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunView(path, *opts, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export log file to JSONL or CSV format", "[flags] <file.nlog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path, err := logPath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter log file and write to new file", "[flags] -o <out.nlog> <file.nlog>")
	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)

	path, err := logPath(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	return commands.RunFilter(path, *output, *opts, os.Stdout)
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the log file", "<file.nlog>")

	path, err := logPath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
