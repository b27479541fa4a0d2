package cli

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/logger"
	"github.com/SysdataSpA/Docker/pkg/model"
)

// NewPrefetchCmd creates the prefetch command.
func NewPrefetchCmd() *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "prefetch [URL...]",
		Short: "Size-check and download a set of resources",
		Long: `Prefetch a set of resource URLs in two phases: first every URL is
size-checked with a HEAD request so only stale or missing resources are
queued, then the queue is downloaded with a bounded worker pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := args
			if fromFile != "" {
				fileURLs, err := readURLList(fromFile)
				if err != nil {
					return err
				}
				urls = append(urls, fileURLs...)
			}
			if len(urls) == 0 {
				return errors.Wrap(errors.ErrBatchEmpty, "no URLs given")
			}
			return runPrefetch(cmd.Context(), urls)
		},
	}

	cmd.Flags().StringVar(&fromFile, "file", "", "read URLs from a file, one per line")

	return cmd
}

func runPrefetch(ctx context.Context, urls []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	// Phase one: size check.
	checked := make(chan struct{})
	var totalSize int64
	var toDownload int

	err = svc.batch.CheckSize(ctx, urls, model.Options{},
		nil,
		func(size int64, count int) {
			totalSize = size
			toDownload = count
			close(checked)
		})
	if err != nil {
		return err
	}

	select {
	case <-checked:
	case <-ctx.Done():
		svc.batch.Cancel()
		return ctx.Err()
	}

	logger.Info("Size check completed", logrus.Fields{
		"urls":          len(urls),
		"to_download":   toDownload,
		"expected_size": totalSize,
	})
	if toDownload == 0 {
		logger.Info("All resources are up to date")
		return nil
	}

	// Phase two: download.
	finished := make(chan bool, 1)

	err = svc.batch.DownloadAll(ctx,
		func(totals model.BatchTotals) {
			logger.Debug("Batch progress", logrus.Fields{
				"remaining_size":  totals.RemainingSize,
				"remaining_count": totals.RemainingCount,
			})
		},
		func(completed bool) {
			finished <- completed
		})
	if err != nil {
		return err
	}

	var completed bool
	select {
	case completed = <-finished:
	case <-ctx.Done():
		svc.batch.Cancel()
		<-finished
		return ctx.Err()
	}

	if !completed {
		return errors.Wrap(errors.ErrNetwork, "one or more downloads failed")
	}
	logger.Info("Prefetch completed", logrus.Fields{"downloaded": toDownload})
	return nil
}

func readURLList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open URL list %s", path)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read URL list %s", path)
	}
	return urls, nil
}
