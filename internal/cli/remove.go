package cli

import (
	"github.com/spf13/cobra"
)

// removeVirtualenvCommand creates the remove-virtualenv command.
func (c *CLI) removeVirtualenvCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "remove-virtualenv <project> <version>",
		Short: "Remove one virtualenv of a project",
		Long: `Remove the project's virtualenv matching version. A partial version must
match exactly one of the project's virtualenvs.`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: c.completeProjects,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpec(args[1], debug)
			if err != nil {
				return err
			}
			e, err := c.openLocal()
			if err != nil {
				return err
			}
			v, err := e.machine.RemoveVirtualenv(cmd.Context(), args[0], spec)
			if err != nil {
				return err
			}
			printSuccess("Removed virtualenv %s %s", StyleHighlight.Render(v.Project), v.Build)
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "match debug builds")
	return cmd
}

// removeProjectCommand creates the remove-project command.
func (c *CLI) removeProjectCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "remove-project <project>",
		Short:             "Remove a project and all its virtualenvs",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeProjects,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.openLocal()
			if err != nil {
				return err
			}
			removed, err := e.machine.RemoveProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSuccess("Removed project %s", StyleHighlight.Render(args[0]))
			for _, v := range removed {
				printDetail("virtualenv %s", v.Build)
			}
			return nil
		},
	}
}

// removeInterpreterCommand creates the remove-interpreter command.
func (c *CLI) removeInterpreterCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "remove-interpreter <version>",
		Short: "Remove an installed interpreter",
		Long: `Remove the installed interpreter matching version. Interpreters still
used by a virtualenv are kept; remove those virtualenvs first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpec(args[0], debug)
			if err != nil {
				return err
			}
			e, err := c.openLocal()
			if err != nil {
				return err
			}
			id, err := e.machine.RemoveInterpreter(cmd.Context(), spec)
			if err != nil {
				return err
			}
			printSuccess("Removed interpreter %s", StyleHighlight.Render(id.String()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "match debug builds")
	return cmd
}
