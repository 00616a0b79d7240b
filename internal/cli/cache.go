package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lilyenv/pkg/cache"
	"github.com/matzehuels/lilyenv/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the release catalog and download caches",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the cached release catalog and downloaded archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.openLocal()
			if err != nil {
				return err
			}

			entries := 0
			switch e.cfg.Cache.Backend {
			case config.CacheFile:
				fc, err := cache.NewFileCache(e.layout.CatalogCacheDir())
				if err != nil {
					return fmt.Errorf("open catalog cache: %w", err)
				}
				if entries, err = fc.Clear(); err != nil {
					return fmt.Errorf("clear catalog cache: %w", err)
				}
			case config.CacheNone:
				printInfo("Catalog caching is disabled (cache.backend = %q)", config.CacheNone)
			case config.CacheRedis:
				printInfo("Redis catalog entries expire after %s; use --refresh to bypass them", e.cfg.CatalogTTL.Duration)
			}

			files, size, err := e.store.ClearDownloads()
			if err != nil {
				return fmt.Errorf("clear downloads: %w", err)
			}

			printSuccess("Cleared %s catalog entries and %s archives (%s)",
				StyleNumber.Render(strconv.Itoa(entries)), StyleNumber.Render(strconv.Itoa(files)), formatSize(size))
			printKeyValue("Directory", e.layout.CacheDir())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.openLocal()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.layout.CacheDir())
			return nil
		},
	}
}
