package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"veriflow/internal/config"
	"veriflow/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workflow core status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Data directory:   %s\n", cfg.Paths.DataDir)
				fmt.Fprintf(out, "Artifacts:        %s\n", cfg.Paths.ArtifactDir)
				fmt.Fprintf(out, "Upload endpoint:  %s\n", valueOrUnset(cfg.Sync.UploadEndpoint))
				fmt.Fprintf(out, "Probe URL:        %s\n", valueOrUnset(cfg.Connectivity.ProbeURL))
				fmt.Fprintln(out)

				rows := [][]string{
					{"pending", strconv.Itoa(health.Pending)},
					{"uploading", strconv.Itoa(health.Uploading)},
					{"completed", strconv.Itoa(health.Completed)},
					{"failed", strconv.Itoa(health.Failed)},
					{"total", strconv.Itoa(health.Total)},
				}
				fmt.Fprintln(out, renderTable([]string{"Queue", "Count"}, rows, 1))

				manual, err := store.List(cmd.Context(), queue.StatusFailed)
				if err != nil {
					return err
				}
				needsUser := 0
				for _, item := range manual {
					if item.NeedsManualRetry(cfg.Sync.MaxAutoRetries) {
						needsUser++
					}
				}
				if needsUser > 0 {
					fmt.Fprintf(out, "%d item(s) need a manual retry (`veriflow queue retry <id>`)\n", needsUser)
				}
				return nil
			})
		},
	}
}

func valueOrUnset(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}
