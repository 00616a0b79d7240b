package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lilyenv/pkg/provision"
)

// openForProvision opens the store with or without network access.
func (c *CLI) openForProvision(ctx context.Context, offline bool) (*env, error) {
	if offline {
		return c.openLocal()
	}
	return c.openRemote(ctx)
}

// virtualenvCommand creates the virtualenv command.
func (c *CLI) virtualenvCommand() *cobra.Command {
	var debug, offline bool

	cmd := &cobra.Command{
		Use:   "virtualenv <project> <version>",
		Short: "Create a project virtualenv, installing the interpreter if needed",
		Example: `  lilyenv virtualenv myproj 3.12
  lilyenv virtualenv myproj 3.13t
  lilyenv virtualenv myproj 3.12 --offline`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: c.completeProjects,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpec(args[1], debug)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := c.openForProvision(ctx, offline)
			if err != nil {
				return err
			}
			defer e.Close()

			run, err := c.runWithSpinner(ctx, fmt.Sprintf("Preparing %s %s...", args[0], spec), func() (*provision.Run, error) {
				return e.machine.Virtualenv(ctx, args[0], spec)
			})
			if err != nil {
				return err
			}
			reportRun(run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "use a debug build")
	cmd.Flags().BoolVar(&offline, "offline", false, "only use installed interpreters")
	return cmd
}

// activateCommand creates the activate command.
func (c *CLI) activateCommand() *cobra.Command {
	var debug, offline, printEnv bool

	cmd := &cobra.Command{
		Use:   "activate <project> <version>",
		Short: "Enter a subshell with the project virtualenv activated",
		Long: `Activate the virtualenv of project on the newest build matching version,
creating it (and installing the interpreter) first if needed.

The subshell is the project's shell, the global shell set with set-shell,
or $SHELL. It starts in the project directory when one is set. With --env
the environment is printed as shell exports instead, for use with eval.`,
		Example: `  lilyenv activate myproj 3.12
  eval "$(lilyenv activate myproj 3.12 --env)"`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: c.completeProjects,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpec(args[1], debug)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := c.openForProvision(ctx, offline)
			if err != nil {
				return err
			}
			defer e.Close()

			run, err := c.runWithSpinner(ctx, fmt.Sprintf("Preparing %s %s...", args[0], spec), func() (*provision.Run, error) {
				return e.machine.Activate(ctx, args[0], spec)
			})
			if err != nil {
				return err
			}
			d := *run.Descriptor

			if printEnv {
				fmt.Fprint(cmd.OutOrStdout(), d.Exports(os.Getenv("PATH")))
				return nil
			}

			r, err := e.registry.Load()
			if err != nil {
				return err
			}
			shell := r.ResolveShell(args[0], os.Getenv("SHELL"))
			if run.Created {
				printSuccess("Created virtualenv %s", StyleHighlight.Render(d.Prompt))
			}
			printInfo("Entering %s with %s; exit the shell to leave", StyleHighlight.Render(d.Project), StyleValue.Render(d.Build.String()))
			e.Close()
			return spawnShell(loggerFromContext(ctx), shell, d)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "use a debug build")
	cmd.Flags().BoolVar(&offline, "offline", false, "only use installed interpreters")
	cmd.Flags().BoolVar(&printEnv, "env", false, "print shell exports instead of starting a shell")
	return cmd
}

// upgradeCommand creates the upgrade command.
func (c *CLI) upgradeCommand() *cobra.Command {
	var (
		debug   bool
		keepOld bool
		project string
	)

	cmd := &cobra.Command{
		Use:   "upgrade <major.minor>",
		Short: "Upgrade a series to its newest bugfix release",
		Long: `Install the newest bugfix release of a major.minor series and move the
virtualenvs of that series onto it. Installed packages are not carried
over. The old virtualenvs and interpreters are removed unless --keep-old
is given.`,
		Example: `  lilyenv upgrade 3.12
  lilyenv upgrade 3.13t --project myproj --keep-old`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpec(args[0], debug)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := c.openRemote(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			spin := newSpinnerWithContext(ctx, fmt.Sprintf("Upgrading %s...", spec))
			spin.Start()
			res, err := e.machine.Upgrade(ctx, spec, provision.UpgradeOptions{Project: project, KeepOld: keepOld})
			spin.Stop()
			if err != nil {
				return err
			}
			reportUpgrade(res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "upgrade the debug builds")
	cmd.Flags().BoolVar(&keepOld, "keep-old", false, "keep superseded virtualenvs and interpreters")
	cmd.Flags().StringVar(&project, "project", "", "only migrate this project's virtualenvs")
	cmd.RegisterFlagCompletionFunc("project", c.completeProjectFlag)
	return cmd
}

// runWithSpinner runs fn with a spinner and logs its duration.
func (c *CLI) runWithSpinner(ctx context.Context, msg string, fn func() (*provision.Run, error)) (*provision.Run, error) {
	prog := newProgress(loggerFromContext(ctx))
	spin := newSpinnerWithContext(ctx, msg)
	spin.Start()
	run, err := fn()
	spin.Stop()
	if err == nil && (run.Installed || run.Created) {
		prog.done("Provisioned " + run.Project + " " + run.Build.String())
	}
	return run, err
}

func reportRun(run *provision.Run) {
	printSuccess("Virtualenv for %s is ready", StyleHighlight.Render(run.Project))
	printBuildStatus(run.Build.String(), run.Installed, "interpreter")
	printBuildStatus(run.Build.String(), run.Created, "virtualenv")
	printPath(run.Virtualenv.Dir)
	printNewline()
	printNextStep("Activate it", fmt.Sprintf("%s activate %s %s", appName, run.Project, run.Build))
}

func reportUpgrade(res *provision.UpgradeResult) {
	if res.UpToDate {
		printInfo("%s is already up to date (%s)", res.Series, StyleHighlight.Render(res.To.String()))
		return
	}
	if res.From.IsZero() {
		printSuccess("Installed %s", StyleHighlight.Render(res.To.String()))
	} else {
		printSuccess("Upgraded %s %s %s", res.From, iconArrow, StyleHighlight.Render(res.To.String()))
	}
	for _, m := range res.Migrated {
		action := "kept old virtualenv"
		if m.Removed {
			action = "removed old virtualenv"
		}
		printDetail("%s: %s %s %s, %s", m.Project, m.From, iconArrow, m.To, action)
	}
	for _, id := range res.Removed {
		printDetail("removed interpreter %s", id)
	}
	for _, w := range res.Warnings {
		printWarning("%s", w)
	}
}
