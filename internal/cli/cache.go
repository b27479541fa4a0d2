package cli

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SysdataSpA/Docker/pkg/logger"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local resource cache",
		Long:  "Show information about, purge, and reset the local resource cache",
	}

	cmd.AddCommand(
		newCacheInfoCmd(),
		newCachePurgeCmd(),
		newCacheResetCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display the cache location, its size and the tracked resources",
		RunE:  runCacheInfo,
	}
}

func newCachePurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached resources",
		Long: `Remove cached resources and their expiration entries. With --older-than,
only resources downloaded before the given age are removed; without it
the whole cache is purged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePurge(olderThan)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only purge resources older than this age (e.g. 72h)")

	return cmd
}

func newCacheResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the in-memory tier and expiration tracking",
		Long: `Drop the in-memory cache tier and all expiration entries. Files on disk
are kept but will be revalidated on next access.`,
		RunE: runCacheReset,
	}
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		Long:  "Display the path to the cache directory",
		RunE:  runCacheDir,
	}
}

func runCacheInfo(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildService(cfg)
	if err != nil {
		return err
	}

	info, err := svc.store.GetInfo()
	if err != nil {
		return err
	}

	fmt.Printf("Cache Directory: %s\n", info.Directory)
	fmt.Printf("Total Size: %d bytes (%d files)\n", info.TotalSize, info.FileCount)
	fmt.Printf("Tracked Resources: %d\n", svc.ledger.Len())
	fmt.Printf("Bundle Directory: %s\n", cfg.GetBundleDir())

	return nil
}

func runCachePurge(olderThan time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	before := svc.ledger.Len()
	if err := svc.resolver.PurgeOlderThan(olderThan); err != nil {
		return err
	}

	logger.Info("Cache purged", logrus.Fields{
		"older_than": olderThan.String(),
		"removed":    before - svc.ledger.Len(),
	})
	return nil
}

func runCacheReset(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	svc.resolver.ResetMemoryCache()

	logger.Info("Cache reset")
	return nil
}

func runCacheDir(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Println(cfg.GetCacheDir())
	return nil
}
