package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// errFailures marks a run that completed but found validation errors.
var errFailures = errors.New("validation failures")

// errUsage is returned after usage has been printed.
var errUsage = errors.New("usage")

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. It returns 0 on success, 1 when
// --fail-on-error is set and validation errors were found, and 2 on any
// runtime or usage error.
func Run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr, level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
	root := a.rootCmd()
	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailures):
		return 1
	case errors.Is(err, errUsage):
		return 2
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if isUsageError(err) {
			_, _ = fmt.Fprintln(stderr, root.UsageString())
		}
		return 2
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "briefcheck",
		Short: "Validate promotion configuration against its rule templates",
		Long: `briefcheck compares the live configuration of each promotion segment
with the rules published for it, checks the recorded stage schedule and
emails a summary of the differences.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(a.stderr)
			_ = cmd.Usage()
			return errUsage
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.validateCmd(),
		a.extractCmd(),
		a.sendEmailCmd(),
		a.summaryCmd(),
		a.doctorCmd(),
		a.mesasCmd(),
	)
	return root
}

// isUsageError reports whether cobra rejected the command line itself.
func isUsageError(err error) bool {
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "invalid argument", "accepts ", "requires "} {
		if strings.HasPrefix(err.Error(), prefix) {
			return true
		}
	}
	return false
}
