package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	lerrors "github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/provision"
)

// Execute runs the lilyenv CLI with args and returns the process exit
// code. Errors are reported on stderr.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via loggerFromContext.
func Execute(ctx context.Context, args []string) int {
	var verbose bool

	c := New(os.Stderr, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			c.SetLogLevel(LogDebug)
		}
		cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	}

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130 // Standard shell convention for SIGINT
	}
	reportError(os.Stderr, err)
	return lerrors.ExitCode(err)
}

// reportError prints err with the failed stage, if any, and a hint for
// well-known failures.
func reportError(w io.Writer, err error) {
	msg := lerrors.UserMessage(err)
	var se *provision.StageError
	if errors.As(err, &se) {
		msg = se.Stage() + ": " + lerrors.UserMessage(se.Err)
	}
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+msg)

	var rl *lerrors.RateLimitedError
	switch {
	case errors.As(err, &rl):
		fmt.Fprintln(w, "  "+StyleDim.Render("set GITHUB_TOKEN (or github.token_env in the config) to raise the limit"))
	case lerrors.Is(err, lerrors.ErrCodeLockContention):
		fmt.Fprintln(w, "  "+StyleDim.Render("another lilyenv command is running; retry when it finishes"))
	case lerrors.Is(err, lerrors.ErrCodeStateCorruption):
		fmt.Fprintln(w, "  "+StyleDim.Render("the registry file is unreadable; move it aside to rebuild it from disk"))
	}
}
