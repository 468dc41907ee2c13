package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betresolver/internal/cache/redis"
	"github.com/alanyoungcy/betresolver/internal/domain"
)

// JobInspector reads queue depth and dead letters.
type JobInspector interface {
	Counts(ctx context.Context) (domain.JobCounts, error)
	Failed(ctx context.Context, limit int) ([]domain.ResolutionJob, error)
}

// NewQueueCommand groups queue inspection subcommands.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the resolution job queue",
	}
	cmd.AddCommand(newQueueStatusCommand(opts))
	return cmd
}

func newQueueStatusCommand(opts *RootOptions) *cobra.Command {
	var failed int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show job counts and the newest dead-lettered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled {
				return errors.New("queue status needs redis; the in-memory queue lives inside the running process")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			rc, err := redis.New(ctx, redis.ClientConfig{
				Addr:       cfg.Redis.Addr,
				Password:   cfg.Redis.Password,
				DB:         cfg.Redis.DB,
				PoolSize:   1,
				MaxRetries: cfg.Redis.MaxRetries,
				TLSEnabled: cfg.Redis.TLSEnabled,
				KeyPrefix:  cfg.Redis.KeyPrefix,
			})
			if err != nil {
				return err
			}
			defer rc.Close()
			return printQueueStatus(ctx, cmd.OutOrStdout(), opts.Format, redis.NewJobBackend(rc), failed)
		},
	}
	cmd.Flags().IntVar(&failed, "failed", 10, "number of dead-lettered jobs to show")
	return cmd
}

func printQueueStatus(ctx context.Context, w io.Writer, format string, q JobInspector, limit int) error {
	counts, err := q.Counts(ctx)
	if err != nil {
		return fmt.Errorf("queue counts: %w", err)
	}
	var jobs []domain.ResolutionJob
	if limit > 0 {
		if jobs, err = q.Failed(ctx, limit); err != nil {
			return fmt.Errorf("failed jobs: %w", err)
		}
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"counts": counts, "failed": jobs})
	}

	table := tablewriter.NewWriter(w)
	table.Header("Waiting", "Delayed", "Active", "Completed", "Failed")
	if err := table.Append(
		strconv.FormatInt(counts.Waiting, 10),
		strconv.FormatInt(counts.Delayed, 10),
		strconv.FormatInt(counts.Active, 10),
		strconv.FormatInt(counts.Completed, 10),
		strconv.FormatInt(counts.Failed, 10),
	); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	dead := tablewriter.NewWriter(w)
	dead.Header("Key", "Attempts", "Failed At", "Last Error")
	for _, j := range jobs {
		failedAt := ""
		if j.FailedAt != nil {
			failedAt = j.FailedAt.UTC().Format(time.RFC3339)
		}
		if err := dead.Append(j.Key, strconv.Itoa(j.Attempts), failedAt, j.LastError); err != nil {
			return err
		}
	}
	return dead.Render()
}
