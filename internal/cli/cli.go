package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/lilyenv/pkg/buildinfo"
	"github.com/matzehuels/lilyenv/pkg/cache"
	"github.com/matzehuels/lilyenv/pkg/config"
	"github.com/matzehuels/lilyenv/pkg/httputil"
	"github.com/matzehuels/lilyenv/pkg/integrations/github"
	"github.com/matzehuels/lilyenv/pkg/provision"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/store"
	"github.com/matzehuels/lilyenv/pkg/venv"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "lilyenv"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath overrides the configuration file location.
	ConfigPath string

	cfg *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "lilyenv manages standalone Python interpreters and project virtualenvs",
		Long: `lilyenv downloads python-build-standalone interpreters, keeps one
virtualenv per project and interpreter, and activates them in a subshell.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "configuration file (default $LILYENV_CONFIG or ~/.config/lilyenv/config.toml)")

	root.AddCommand(c.listCommand())
	root.AddCommand(c.downloadCommand())
	root.AddCommand(c.upgradeCommand())
	root.AddCommand(c.virtualenvCommand())
	root.AddCommand(c.activateCommand())
	root.AddCommand(c.removeVirtualenvCommand())
	root.AddCommand(c.removeProjectCommand())
	root.AddCommand(c.removeInterpreterCommand())
	root.AddCommand(c.setProjectDirectoryCommand())
	root.AddCommand(c.unsetProjectDirectoryCommand())
	root.AddCommand(c.setShellCommand())
	root.AddCommand(c.shellConfigCommand())
	root.AddCommand(c.cdSitePackagesCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Environment Factory
// =============================================================================

// config loads the configuration once per invocation.
func (c *CLI) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if c.ConfigPath != "" {
		cfg, err = config.LoadFile(c.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		c.Logger.Debug("loaded config", "path", cfg.Path)
	}
	c.cfg = cfg
	return cfg, nil
}

// env bundles the components a command works with.
type env struct {
	cfg      *config.Config
	layout   registry.Layout
	registry *registry.Store
	cache    cache.Cache
	releases *github.Client
	store    *store.Store
	machine  *provision.Machine
}

// Close releases the catalog cache.
func (e *env) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

// openLocal opens the store without network access. Commands that only
// read or remove local state use it.
func (c *CLI) openLocal() (*env, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	root, err := cfg.StoreRoot()
	if err != nil {
		return nil, err
	}
	layout := registry.Layout{Root: root}
	reg := registry.NewStore(layout,
		registry.WithLockWait(cfg.LockTimeout.Duration),
		registry.WithStaleAfter(cfg.DownloadTimeout.Duration),
	)
	st := store.New(reg, nil, c.Logger)
	m := provision.New(st, nil, venv.NewCreator(), c.Logger)
	m.Offline = true
	return &env{cfg: cfg, layout: layout, registry: reg, store: st, machine: m}, nil
}

// openRemote opens the store together with the release catalog client.
func (c *CLI) openRemote(ctx context.Context) (*env, error) {
	e, err := c.openLocal()
	if err != nil {
		return nil, err
	}
	e.cache = c.newCache(ctx, e.cfg, e.layout)

	releases, err := github.NewClient(github.Options{
		Owner:           e.cfg.GitHub.Owner,
		Repo:            e.cfg.GitHub.Repo,
		BaseURL:         e.cfg.GitHub.APIURL,
		Token:           e.cfg.Token(),
		Platform:        e.cfg.Platform,
		Pages:           e.cfg.CatalogPages,
		Cache:           e.cache,
		CacheTTL:        e.cfg.CatalogTTL.Duration,
		Timeout:         e.cfg.HTTPTimeout.Duration,
		DownloadTimeout: e.cfg.DownloadTimeout.Duration,
		Retry: httputil.Policy{
			Attempts: e.cfg.RetryAttempts,
			Delay:    e.cfg.RetryDelay.Duration,
			MaxDelay: httputil.DefaultPolicy.MaxDelay,
		},
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.releases = releases
	e.store.Downloader = releases
	e.machine.Catalog = releases
	e.machine.Offline = false
	return e, nil
}

// newCache opens the configured catalog cache. A cache that cannot be
// opened is not fatal; the catalog is then fetched every time.
func (c *CLI) newCache(ctx context.Context, cfg *config.Config, layout registry.Layout) cache.Cache {
	cc, err := cache.Open(ctx, cfg.Cache.Backend, layout.CatalogCacheDir(), cfg.Cache.RedisURL)
	if err != nil {
		c.Logger.Warn("catalog cache unavailable", "backend", cfg.Cache.Backend, "err", err)
		return cache.NewDisabled(err.Error())
	}
	if d, ok := cc.(*cache.Disabled); ok {
		c.Logger.Debug("catalog cache disabled", "reason", d.Reason)
	}
	return cc
}
