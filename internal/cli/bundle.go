package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SysdataSpA/Docker/pkg/bundle"
	"github.com/SysdataSpA/Docker/pkg/logger"
)

// NewBundleCmd creates the bundle command with subcommands
func NewBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Create and install seed archives",
		Long: `Pack the download cache into a seed archive that can be shipped with an
application, or unpack such an archive into the read-only bundle directory
so resources are available before any network access.`,
	}

	cmd.AddCommand(
		newBundleExportCmd(),
		newBundleImportCmd(),
	)

	return cmd
}

func newBundleExportCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "export ARCHIVE",
		Short: "Pack cached resources into a seed archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundleExport(cmd, args[0], source)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "directory to pack (default: the cache directory)")

	return cmd
}

func newBundleImportCmd() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "import ARCHIVE",
		Short: "Unpack a seed archive into the bundle directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundleImport(cmd, args[0], dest)
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "directory to unpack into (default: the bundle directory)")

	return cmd
}

func runBundleExport(cmd *cobra.Command, archivePath, source string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if source == "" {
		source = cfg.GetCacheDir()
	}

	if err := bundle.Export(cmd.Context(), source, archivePath); err != nil {
		return err
	}

	logger.Info("Seed archive created", logrus.Fields{"archive": archivePath, "source": source})
	return nil
}

func runBundleImport(cmd *cobra.Command, archivePath, dest string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dest == "" {
		dest = cfg.GetBundleDir()
	}

	if err := bundle.Import(cmd.Context(), archivePath, dest); err != nil {
		return err
	}

	logger.Info("Seed archive installed", logrus.Fields{"archive": archivePath, "dest": dest})
	return nil
}
