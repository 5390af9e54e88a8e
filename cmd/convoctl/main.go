package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/convoctl/internal/logging"
	"github.com/spf13/pflag"
)

const usage = `convoctl manages one conversational agent session.

Usage:
  convoctl serve   [--config path] [--addr host:port] [--autostart] [--stop-on-exit]
  convoctl start   [--config path] [--wait-timeout 2m]
  convoctl stop    [--config path] --agent-id ID
  convoctl list    [--config path]
  convoctl version

Credentials are read from CONVOCTL_API_KEY and CONVOCTL_API_SECRET.
`

// exitError carries a process exit code for outcomes that are not faults,
// e.g. a start that ended without a session.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "convoctl: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return &exitError{code: 2, err: errors.New("missing command")}
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(ctx, rest, stderr)
	case "start":
		return cmdStart(ctx, rest, stdout, stderr)
	case "stop":
		return cmdStop(ctx, rest, stdout, stderr)
	case "list":
		return cmdList(ctx, rest, stdout, stderr)
	case "version", "--version":
		return cmdVersion(stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return &exitError{code: 2, err: fmt.Errorf("unknown command %q", cmd)}
	}
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("convoctl "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags maps --help to a clean exit and bad flags to exit code 2.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, &exitError{code: 2, err: err}
	}
	if extra := fs.Args(); len(extra) > 0 {
		return false, &exitError{code: 2, err: fmt.Errorf("unexpected argument: %s", extra[0])}
	}
	return true, nil
}
