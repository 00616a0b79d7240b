package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// Output formats accepted by -o.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// addOutputFlag registers -o/--output on cmd.
func addOutputFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "output", "o", formatText, "output format: text, json or yaml")
	cmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{formatText, formatJSON, formatYAML}, cobra.ShellCompDirectiveNoFileComp
	})
}

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return errors.New(errors.ErrCodeInvalidInput, "unknown output format %q (want text, json or yaml)", format)
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported structured format %q", format)
}

// =============================================================================
// Listing Rows
// =============================================================================

type interpreterRow struct {
	Build       string    `json:"build" yaml:"build"`
	Variant     string    `json:"variant" yaml:"variant"`
	Dir         string    `json:"dir" yaml:"dir"`
	InstalledAt time.Time `json:"installed_at" yaml:"installed_at"`
	UsedBy      []string  `json:"used_by,omitempty" yaml:"used_by,omitempty"`
}

type virtualenvRow struct {
	Project   string    `json:"project" yaml:"project"`
	Build     string    `json:"build" yaml:"build"`
	Dir       string    `json:"dir" yaml:"dir"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type projectRow struct {
	Name        string          `json:"name" yaml:"name"`
	Directory   string          `json:"directory,omitempty" yaml:"directory,omitempty"`
	Shell       string          `json:"shell,omitempty" yaml:"shell,omitempty"`
	Virtualenvs []virtualenvRow `json:"virtualenvs" yaml:"virtualenvs"`
}

type listing struct {
	Interpreters []interpreterRow `json:"interpreters" yaml:"interpreters"`
	Projects     []projectRow     `json:"projects" yaml:"projects"`
}

type catalogRow struct {
	Build     string `json:"build" yaml:"build"`
	Variant   string `json:"variant" yaml:"variant"`
	Release   string `json:"release" yaml:"release"`
	Asset     string `json:"asset" yaml:"asset"`
	Size      int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Installed bool   `json:"installed" yaml:"installed"`
}

type catalogGroup struct {
	Series string       `json:"series" yaml:"series"`
	Builds []catalogRow `json:"builds" yaml:"builds"`
}

// buildListing collects the registry view, optionally for one project.
func buildListing(r *registry.Registry, project string) listing {
	var out listing
	if project == "" {
		for _, id := range r.InstalledBuilds() {
			in, _ := r.Interpreter(id)
			row := interpreterRow{Build: id.String(), Variant: id.Variant.Label(), Dir: in.Dir, InstalledAt: in.InstalledAt}
			for _, v := range r.DependentVirtualenvs(id) {
				row.UsedBy = append(row.UsedBy, v.Project)
			}
			out.Interpreters = append(out.Interpreters, row)
		}
	}

	names := r.ProjectNames()
	if project != "" {
		names = nil
		if _, ok := r.Project(project); ok {
			names = []string{project}
		}
	}
	for _, name := range names {
		p, _ := r.Project(name)
		row := projectRow{Name: p.Name, Directory: p.Directory, Shell: p.Shell, Virtualenvs: []virtualenvRow{}}
		for _, v := range r.Virtualenvs(name) {
			row.Virtualenvs = append(row.Virtualenvs, virtualenvRow{
				Project: v.Project, Build: v.Build.String(), Dir: v.Dir, CreatedAt: v.CreatedAt,
			})
		}
		out.Projects = append(out.Projects, row)
	}
	return out
}

// catalogGroups converts catalog groups to rows, marking installed builds.
func catalogGroups(groups []catalog.Group, installed map[version.BuildID]bool) []catalogGroup {
	out := make([]catalogGroup, 0, len(groups))
	for _, g := range groups {
		cg := catalogGroup{Series: g.Series}
		for _, e := range g.Entries {
			cg.Builds = append(cg.Builds, catalogRow{
				Build:     e.Build.String(),
				Variant:   e.Build.Variant.Label(),
				Release:   e.ReleaseTag,
				Asset:     e.Name,
				Size:      e.Size,
				Installed: installed[e.Build],
			})
		}
		out = append(out, cg)
	}
	return out
}
