// Package cli is the command-line front-end of genesisvault. It parses the
// argument vector, hands the result to a single delegate and turns the
// outcome into a process exit code.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/genesisvault/genesisvault/internal/cli.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Exit codes returned by Execute
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Options holds the parsed command line
type Options struct {
	Verbose bool
}

// RunFunc is the delegate invoked once the command line has been parsed.
// stderr is where the front-end reports errors; the delegate logs there too.
type RunFunc func(ctx context.Context, opts Options, stderr io.Writer) error

// Returned by Parse when a banner flag was given instead of a run request
var (
	ErrHelp    = errors.New("help requested")
	ErrVersion = errors.New("version requested")
)

// usageError marks errors caused by a malformed command line
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// IsUsageError reports whether err came from argument parsing
func IsUsageError(err error) bool {
	var uErr *usageError
	return errors.As(err, &uErr)
}

// NewRootCmd builds the root command. Parsed flags are written to opts;
// run is called with them when neither --help nor --version was given.
func NewRootCmd(opts *Options, run RunFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "genesisvault",
		Short:   "GenesisVault - A Go implementation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if run == nil {
				return nil
			}
			return run(cmd.Context(), *opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.Flags().BoolP("version", "V", false, "Print version")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	return cmd
}

// Parse parses args into Options without running anything. --help and
// --version yield ErrHelp and ErrVersion; malformed input yields an error
// for which IsUsageError is true.
func Parse(args []string) (Options, error) {
	var opts Options
	cmd := NewRootCmd(&opts, nil)

	if err := parse(cmd, args); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// parse checks the banner flags in the same order cobra does: help, then
// version, then positional arguments.
func parse(cmd *cobra.Command, args []string) error {
	cmd.InitDefaultHelpFlag()

	if err := cmd.ParseFlags(args); err != nil {
		return cmd.FlagErrorFunc()(cmd, err)
	}
	if help, _ := cmd.Flags().GetBool("help"); help {
		return ErrHelp
	}
	if version, _ := cmd.Flags().GetBool("version"); version {
		return ErrVersion
	}
	return cmd.ValidateArgs(cmd.Flags().Args())
}

// Execute runs the front-end against args and returns the exit code.
// Parse errors print the usage text; delegate errors are printed alone.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, run RunFunc) int {
	var opts Options
	cmd := NewRootCmd(&opts, run)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetContext(ctx)

	err := parse(cmd, args)
	switch {
	case errors.Is(err, ErrHelp):
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)
			return ExitFailure
		}
		return ExitOK
	case errors.Is(err, ErrVersion):
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", cmd.Name(), cmd.Version)
		return ExitOK
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return ExitUsage
	}

	if err := cmd.RunE(cmd, cmd.Flags().Args()); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)
		return ExitFailure
	}
	return ExitOK
}
