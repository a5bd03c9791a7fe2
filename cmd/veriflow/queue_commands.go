package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"veriflow/internal/config"
	"veriflow/internal/logging"
	"veriflow/internal/notifications"
	"veriflow/internal/queue"
	"veriflow/internal/uploader"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline upload queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueDrainCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(stats))
				for _, status := range []queue.Status{queue.StatusPending, queue.StatusUploading, queue.StatusCompleted, queue.StatusFailed} {
					if count, ok := stats[status]; ok {
						rows = append(rows, []string{string(status), strconv.Itoa(count)})
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, 1))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No queue items")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						string(item.Kind),
						string(item.Status),
						fmt.Sprintf("%d%%", int(item.Progress)),
						strconv.Itoa(item.Attempts),
						describeFailure(item, cfg.Sync.MaxAutoRetries),
					})
				}
				headers := []string{"ID", "Kind", "Status", "Progress", "Attempts", "Last Error"}
				if isTerminal(cmd.OutOrStdout()) {
					fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, 3, 4))
					return nil
				}
				for _, row := range rows {
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(row, "\t"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (pending, uploading, completed, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Requeue failed items and drain the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				mgr := newUploadManager(cfg, store)
				for _, id := range args {
					if err := mgr.Retry(cmd.Context(), id); err != nil {
						return fmt.Errorf("retry %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Retried %s\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueDrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Upload all pending items now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				started := time.Now()
				if err := newUploadManager(cfg, store).DrainQueue(cmd.Context()); err != nil {
					return err
				}
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Drain finished in %s: %d completed, %d failed, %d pending\n",
					time.Since(started).Round(time.Millisecond), health.Completed, health.Failed, health.Pending)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all items from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to clear the queue without --force")
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d items\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm removal of every queue item")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database:        %s\n", store.Path())
				fmt.Fprintf(out, "Readable:        %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Table present:   %s\n", yesNo(health.TableExists))
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Total items:     %d\n", health.TotalItems)
				if health.Error != "" {
					fmt.Fprintf(out, "Error:           %s\n", health.Error)
				}
				return nil
			})
		},
	}
}

func newUploadManager(cfg *config.Config, store *queue.Store) *uploader.Manager {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		logger = logging.NewNop()
	}
	return uploader.NewManager(cfg, store, uploader.NewHTTPTransport(cfg), notifications.NewService(cfg), logger)
}

func parseStatuses(raw []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(raw))
	for _, value := range raw {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func describeFailure(item *queue.Item, maxAutoRetries int) string {
	if item.Status != queue.StatusFailed {
		return ""
	}
	reason := item.LastError
	if len(reason) > 60 {
		reason = reason[:57] + "..."
	}
	if item.NeedsManualRetry(maxAutoRetries) {
		return reason + " (tap to retry)"
	}
	return reason
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
