package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geotargets-cli/internal/config"
	"github.com/sells-group/geotargets-cli/internal/geoerr"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geotargets",
	Short: "Google Ads geo targets lookup and updater",
	Long:  "Resolves location criteria ids against a local copy of the Google Ads geo targets table and keeps that copy current.",
	// Commands print their own failure line; main maps the error to an exit code.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// usageError marks invalid invocations; they exit with geoerr.ExitUsage.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// commandError prefixes a failure with the command that hit it.
type commandError struct {
	prefix string
	err    error
}

func (e *commandError) Error() string { return e.prefix + ": " + e.err.Error() }

func (e *commandError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return geoerr.ExitUsage
	}
	return geoerr.ExitCode(err)
}

// execute runs the root command with args and returns the exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(stderr, err.Error()) //nolint:errcheck
	}
	return exitCode(err)
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
