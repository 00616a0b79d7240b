package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lilyenv/pkg/activation"
	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/venv"
)

// promptSnippets show VIRTUAL_ENV_PROMPT in the prompt of an activated
// subshell, per shell.
var promptSnippets = map[string]string{
	"bash": `# lilyenv: show the active virtualenv in the prompt
if [ -n "$VIRTUAL_ENV_PROMPT" ]; then
    PS1="$VIRTUAL_ENV_PROMPT$PS1"
fi
`,
	"zsh": `# lilyenv: show the active virtualenv in the prompt
if [[ -n "$VIRTUAL_ENV_PROMPT" ]]; then
    PROMPT="$VIRTUAL_ENV_PROMPT$PROMPT"
fi
`,
	"fish": `# lilyenv: show the active virtualenv in the prompt
if set -q VIRTUAL_ENV_PROMPT
    functions -c fish_prompt _lilyenv_fish_prompt
    function fish_prompt
        printf "%s" "$VIRTUAL_ENV_PROMPT"
        _lilyenv_fish_prompt
    end
end
`,
}

// shellConfigCommand creates the shell-config command.
func (c *CLI) shellConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell-config [bash|zsh|fish]",
		Short: "Print the prompt snippet for your shell's rc file",
		Long: `Print a snippet that shows the active project and build in the prompt of
shells started by activate. Append it to ~/.bashrc, ~/.zshrc or
~/.config/fish/config.fish. The shell defaults to $SHELL.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := filepath.Base(os.Getenv("SHELL"))
			if len(args) == 1 {
				shell = args[0]
			}
			return writeShellConfig(cmd.OutOrStdout(), shell)
		},
	}
}

func writeShellConfig(w io.Writer, shell string) error {
	snippet, ok := promptSnippets[shell]
	if !ok {
		return errors.New(errors.ErrCodeUnsupported, "no prompt snippet for shell %q (supported: bash, zsh, fish)", shell)
	}
	_, err := io.WriteString(w, snippet)
	return err
}

// cdSitePackagesCommand creates the cd-site-packages command.
func (c *CLI) cdSitePackagesCommand() *cobra.Command {
	var debug, printOnly bool

	cmd := &cobra.Command{
		Use:   "cd-site-packages <project> <version>",
		Short: "Open an activated shell in a virtualenv's site-packages",
		Args:  cobra.ExactArgs(2),
		Example: `  lilyenv cd-site-packages myproj 3.12
  cd "$(lilyenv cd-site-packages myproj 3.12 --print)"`,
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
			r, err := e.registry.Load()
			if err != nil {
				return err
			}
			p, ok := r.Project(args[0])
			if !ok {
				return errors.New(errors.ErrCodeNotFound, "project %q does not exist", args[0])
			}
			id, err := catalog.Resolve(r.ProjectBuilds(args[0]), spec, true)
			if err != nil {
				return err
			}
			v, _ := r.Virtualenv(args[0], id)
			site, err := venv.SitePackages(v.Dir)
			if err != nil {
				return err
			}

			if printOnly {
				fmt.Fprintln(cmd.OutOrStdout(), site)
				return nil
			}
			in, ok := r.Interpreter(id)
			if !ok {
				return errors.New(errors.ErrCodeNotFound, "interpreter %s of this virtualenv is not installed", id)
			}
			d := activation.Build(v, in, p)
			d.Directory = site
			return spawnShell(loggerFromContext(cmd.Context()), r.ResolveShell(args[0], os.Getenv("SHELL")), d)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "match debug builds")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the path instead of starting a shell")
	return cmd
}
