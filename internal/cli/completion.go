package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for lilyenv.

To load completions:

Bash:
  $ source <(lilyenv completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ lilyenv completion bash > /etc/bash_completion.d/lilyenv
  # macOS:
  $ lilyenv completion bash > $(brew --prefix)/etc/bash_completion.d/lilyenv

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ lilyenv completion zsh > "${fpath[1]}/_lilyenv"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ lilyenv completion fish | source

  # To load completions for each session, execute once:
  $ lilyenv completion fish > ~/.config/fish/completions/lilyenv.fish

PowerShell:
  PS> lilyenv completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> lilyenv completion powershell > lilyenv.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	return cmd
}

// completeProjects completes the first positional argument with the known
// project names.
func (c *CLI) completeProjects(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return c.completeProjectFlag(cmd, args, toComplete)
}

// completeProjectFlag completes a --project flag value.
func (c *CLI) completeProjectFlag(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	e, err := c.openLocal()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	r, err := e.registry.Load()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var out []string
	for _, name := range r.ProjectNames() {
		if strings.HasPrefix(name, toComplete) {
			out = append(out, name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
