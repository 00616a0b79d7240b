package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/registry"
)

// setProjectDirectoryCommand creates the set-project-directory command.
func (c *CLI) setProjectDirectoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-project-directory <project> [dir]",
		Short: "Set the directory activate starts in",
		Long: `Set the default directory of a project; activate changes into it before
starting the shell. dir defaults to the current directory.`,
		Args:              cobra.RangeArgs(1, 2),
		ValidArgsFunction: c.completeProjects,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 2 {
				dir = args[1]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			e, err := c.openLocal()
			if err != nil {
				return err
			}
			err = e.registry.Update(cmd.Context(), func(r *registry.Registry) error {
				return r.SetDirectory(args[0], abs)
			})
			if err != nil {
				return err
			}
			printSuccess("Set directory of %s", StyleHighlight.Render(args[0]))
			printPath(abs)
			return nil
		},
	}
}

// unsetProjectDirectoryCommand creates the unset-project-directory command.
func (c *CLI) unsetProjectDirectoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "unset-project-directory <project>",
		Short:             "Clear the directory activate starts in",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeProjects,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.openLocal()
			if err != nil {
				return err
			}
			err = e.registry.Update(cmd.Context(), func(r *registry.Registry) error {
				if _, ok := r.Project(args[0]); !ok {
					return errors.New(errors.ErrCodeNotFound, "project %q does not exist", args[0])
				}
				return r.SetDirectory(args[0], "")
			})
			if err != nil {
				return err
			}
			printSuccess("Cleared directory of %s", StyleHighlight.Render(args[0]))
			return nil
		},
	}
}

// setShellCommand creates the set-shell command.
func (c *CLI) setShellCommand() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "set-shell <shell>",
		Short: "Set the shell activate starts",
		Long: `Set the shell started by activate, globally or for one project with
--project. A project shell takes precedence over the global one, which
takes precedence over $SHELL.`,
		Example: `  lilyenv set-shell fish
  lilyenv set-shell /bin/zsh --project myproj`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.openLocal()
			if err != nil {
				return err
			}
			err = e.registry.Update(cmd.Context(), func(r *registry.Registry) error {
				return r.SetShell(project, args[0])
			})
			if err != nil {
				return err
			}
			if project != "" {
				printSuccess("Shell of %s is now %s", StyleHighlight.Render(project), args[0])
			} else {
				printSuccess("Default shell is now %s", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "set the shell for this project only")
	cmd.RegisterFlagCompletionFunc("project", c.completeProjectFlag)
	return cmd
}
