package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// downloadCommand creates the download command.
func (c *CLI) downloadCommand() *cobra.Command {
	var (
		debug   bool
		refresh bool
		pick    bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "download [version]",
		Short: "Download an interpreter, or list the available ones",
		Long: `Download the newest interpreter matching version into the store.

Without a version, list the builds available for this platform, grouped by
major.minor. With --pick, choose the build interactively.`,
		Example: `  lilyenv download            # list available builds
  lilyenv download 3.12       # newest 3.12.x
  lilyenv download 3.13t      # freethreaded build
  lilyenv download 3.12 --debug
  lilyenv download --pick`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			var spec *version.Spec
			if len(args) == 1 {
				s, err := parseSpec(args[0], debug)
				if err != nil {
					return err
				}
				spec = &s
			}

			ctx := cmd.Context()
			e, err := c.openRemote(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			e.machine.Refresh = refresh

			switch {
			case pick:
				return c.pickAndInstall(ctx, e, spec, debug, refresh)
			case spec == nil:
				return c.listAvailable(ctx, cmd.OutOrStdout(), e, debug, refresh, format)
			default:
				return c.download(ctx, e, *spec)
			}
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "use debug builds")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the release catalog")
	cmd.Flags().BoolVar(&pick, "pick", false, "choose the build interactively")
	addOutputFlag(cmd, &format)
	return cmd
}

// download installs the build matching spec.
func (c *CLI) download(ctx context.Context, e *env, spec version.Spec) error {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	spin := newSpinnerWithContext(ctx, fmt.Sprintf("Installing %s...", spec))
	spin.Start()
	run, err := e.machine.Download(ctx, spec)
	spin.Stop()
	if err != nil {
		return err
	}

	reportInstall(prog, run.Interpreter, run.Installed)
	return nil
}

// listAvailable prints the catalog grouped by series.
func (c *CLI) listAvailable(ctx context.Context, w io.Writer, e *env, debug, refresh bool, format string) error {
	cat, installed, err := fetchCatalog(ctx, e, refresh)
	if err != nil {
		return err
	}
	groups := catalogGroups(cat.Groups(variantFilter(debug)), installed)
	if format != formatText {
		return writeStructured(w, format, groups)
	}
	renderCatalog(w, cat, groups)
	return nil
}

func fetchCatalog(ctx context.Context, e *env, refresh bool) (*catalog.Catalog, map[version.BuildID]bool, error) {
	spin := newSpinnerWithContext(ctx, "Fetching releases...")
	spin.Start()
	cat, err := e.releases.Fetch(ctx, refresh)
	spin.Stop()
	if err != nil {
		return nil, nil, err
	}

	r, err := e.registry.Load()
	if err != nil {
		return nil, nil, err
	}
	installed := make(map[version.BuildID]bool)
	for _, id := range r.InstalledBuilds() {
		installed[id] = true
	}
	return cat, installed, nil
}

// variantFilter keeps debug builds with --debug and the others without.
func variantFilter(debug bool) func(catalog.Entry) bool {
	return func(e catalog.Entry) bool { return e.Build.Variant.IsDebug() == debug }
}

func renderCatalog(w io.Writer, cat *catalog.Catalog, groups []catalogGroup) {
	fmt.Fprintln(w, StyleTitle.Render("Available builds")+StyleDim.Render(" ("+cat.Platform+", "+cat.Source+")"))
	if len(groups) == 0 {
		fmt.Fprintln(w, "  "+StyleDim.Render("no builds for this platform"))
		return
	}
	for _, g := range groups {
		names := make([]string, len(g.Builds))
		for i, b := range g.Builds {
			if b.Installed {
				names[i] = StyleSuccess.Render(b.Build)
			} else {
				names[i] = StyleValue.Render(b.Build)
			}
		}
		keyStyle := StyleHighlight.Width(6)
		fmt.Fprintln(w, "  "+keyStyle.Render(g.Series)+" "+strings.Join(names, " "))
	}
	fmt.Fprintln(w, "  "+StyleDim.Render("installed builds are shown in ")+StyleSuccess.Render("green"))
}

// pickAndInstall lets the user choose a build and installs it.
func (c *CLI) pickAndInstall(ctx context.Context, e *env, spec *version.Spec, debug, refresh bool) error {
	if !stderrIsTerminal() {
		return errors.New(errors.ErrCodeInvalidInput, "--pick needs an interactive terminal")
	}
	cat, installed, err := fetchCatalog(ctx, e, refresh)
	if err != nil {
		return err
	}

	pred := variantFilter(debug)
	if spec != nil {
		s := *spec
		pred = func(e catalog.Entry) bool { return version.Matches(s, e.Build) }
	}
	entries := cat.Filter(pred)
	if len(entries) == 0 {
		return errors.New(errors.ErrCodeNotFound, "no builds to choose from")
	}

	model := NewBuildPickerModel(entries, installed)
	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("build picker: %w", err)
	}
	picked := final.(BuildPickerModel).Selected
	if picked == nil {
		printInfo("Nothing selected")
		return nil
	}

	prog := newProgress(loggerFromContext(ctx))
	spin := newSpinnerWithContext(ctx, fmt.Sprintf("Installing %s...", picked.Build))
	spin.Start()
	in, fresh, err := e.store.EnsureInstalled(ctx, picked.Build, cat)
	spin.Stop()
	if err != nil {
		return err
	}
	reportInstall(prog, in, fresh)
	return nil
}

func reportInstall(prog *progress, in registry.Interpreter, fresh bool) {
	if !fresh {
		printInfo("%s is already installed", StyleHighlight.Render(in.Build.String()))
		return
	}
	prog.done("Installed " + in.Build.String())
	printSuccess("Installed %s", StyleHighlight.Render(in.Build.String()))
	printPath(in.Dir)
}

// parseSpec parses a version argument, applying --debug.
func parseSpec(text string, debug bool) (version.Spec, error) {
	s, err := version.Parse(text)
	if err != nil {
		return version.Spec{}, err
	}
	return s.WithDebug(debug), nil
}
