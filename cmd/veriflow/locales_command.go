package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"veriflow/internal/locale"
)

func newLocalesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "locales",
		Short: "List the supported verification locales",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := locale.NewCatalog(cfg.Locale.Supported)
			if err != nil {
				return fmt.Errorf("build locale catalog: %w", err)
			}

			rows := make([][]string, 0, len(catalog.Codes()))
			for _, code := range catalog.Codes() {
				marker := ""
				if code == cfg.Locale.Default {
					marker = "default"
				}
				rows = append(rows, []string{code, catalog.DisplayName(code), marker})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Language", ""}, rows))
			return nil
		},
	}
}
