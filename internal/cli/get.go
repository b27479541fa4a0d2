package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SysdataSpA/Docker/pkg/logger"
	"github.com/SysdataSpA/Docker/pkg/model"
	"github.com/SysdataSpA/Docker/pkg/resolver"
)

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	var (
		force      bool
		noSave     bool
		expiration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "get URL [URL...]",
		Short: "Resolve resources into the local cache",
		Long: `Resolve one or more resource URLs. A resource already present and still
fresh is served locally; an expired one is revalidated against the server
and re-downloaded only when it actually changed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := model.Options{
				ForceDownload:      force,
				SaveDisabled:       noSave,
				ExpirationInterval: expiration,
			}
			return runGet(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "download even if a fresh local copy exists")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not persist the downloaded bytes")
	cmd.Flags().DurationVar(&expiration, "expiration", 0, "freshness window for this request (default: configured interval)")

	return cmd
}

func runGet(ctx context.Context, urls []string, opts model.Options) error {
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
		if err := resolveOne(ctx, svc.resolver, url, opts); err != nil {
			return err
		}
	}
	return nil
}

func resolveOne(ctx context.Context, res *resolver.Resolver, url string, opts model.Options) error {
	done := make(chan error, 1)

	handlers := resolver.Handlers{
		OnSuccess: func(r model.Resolution) {
			logger.Info("Resource ready", logrus.Fields{
				"url":    r.URL,
				"result": r.Result.String(),
				"bytes":  len(r.Data),
			})
			if r.LocalPath != "" {
				fmt.Println(r.LocalPath)
			}
			done <- nil
		},
		OnProgress: func(p model.Progress) {
			logger.Debug("Downloading", logrus.Fields{
				"url":      p.URL,
				"read":     p.TotalRead,
				"expected": p.TotalExpected,
			})
		},
		OnFailure: func(_ string, err error) {
			done <- err
		},
	}

	if _, err := res.Resolve(ctx, url, opts, handlers); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		res.Cancel(url)
		<-done
		return ctx.Err()
	}
}
