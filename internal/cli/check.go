package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SysdataSpA/Docker/pkg/model"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	var expiration time.Duration

	cmd := &cobra.Command{
		Use:   "check URL [URL...]",
		Short: "Check which resources would be downloaded",
		Long: `Check the freshness of one or more resource URLs without downloading
anything. Stale resources are revalidated with a HEAD request; the output
reports whether a download would happen and its expected size.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, model.Options{ExpirationInterval: expiration})
		},
	}

	cmd.Flags().DurationVar(&expiration, "expiration", 0, "freshness window for this check (default: configured interval)")

	return cmd
}

func runCheck(cmd *cobra.Command, urls []string, opts model.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	for _, url := range urls {
		result, err := svc.resolver.DryCheck(cmd.Context(), url, opts)
		if err != nil {
			return err
		}
		if result.NeedsDownload {
			fmt.Printf("%s: needs download (%d bytes)\n", result.URL, result.ExpectedSize)
		} else {
			fmt.Printf("%s: up to date\n", result.URL)
		}
	}
	return nil
}
