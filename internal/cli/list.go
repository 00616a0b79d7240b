package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list [project]",
		Short: "List installed interpreters and virtualenvs",
		Long: `List installed interpreters and the virtualenvs of every project, or of
one project. Listing never modifies the store.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: c.completeProjects,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			project := ""
			if len(args) == 1 {
				project = args[0]
				if err := errors.ValidateProjectName(project); err != nil {
					return err
				}
			}

			e, err := c.openLocal()
			if err != nil {
				return err
			}
			r, err := e.registry.Load()
			if err != nil {
				return err
			}

			if project != "" {
				if _, ok := r.Project(project); !ok {
					return errors.New(errors.ErrCodeNotFound, "project %q does not exist", project)
				}
			}

			l := buildListing(r, project)
			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, l)
			}
			renderListing(cmd.OutOrStdout(), l, project == "")
			return nil
		},
	}

	addOutputFlag(cmd, &format)
	return cmd
}

// renderListing prints the text form of a listing.
func renderListing(w io.Writer, l listing, showInterpreters bool) {
	if showInterpreters {
		fmt.Fprintln(w, StyleTitle.Render("Interpreters"))
		if len(l.Interpreters) == 0 {
			fmt.Fprintln(w, "  "+StyleDim.Render("none installed"))
		}
		for _, in := range l.Interpreters {
			line := "  " + StyleValue.Render(in.Build)
			if len(in.UsedBy) > 0 {
				line += StyleDim.Render(" · used by " + strings.Join(in.UsedBy, ", "))
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, StyleTitle.Render("Virtualenvs"))
	if len(l.Projects) == 0 {
		fmt.Fprintln(w, "  "+StyleDim.Render("no virtualenvs yet"))
		return
	}
	for _, p := range l.Projects {
		header := "  " + StyleHighlight.Render(p.Name)
		if p.Directory != "" {
			header += StyleDim.Render(" " + iconArrow + " " + p.Directory)
		}
		if p.Shell != "" {
			header += StyleDim.Render(" (" + p.Shell + ")")
		}
		fmt.Fprintln(w, header)
		if len(p.Virtualenvs) == 0 {
			fmt.Fprintln(w, "    "+StyleDim.Render("no virtualenvs yet"))
		}
		for _, v := range p.Virtualenvs {
			fmt.Fprintln(w, "    "+StyleValue.Render(v.Build))
		}
	}
}
