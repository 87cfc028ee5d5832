package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/travelgenie/internal/app"
	"github.com/MrWong99/travelgenie/internal/resilience"
	"github.com/MrWong99/travelgenie/internal/tool"
)

func toolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the travel tools and whether their APIs are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, logLevel)
			if err != nil {
				return err
			}
			reg, err := app.BuildRegistry(app.NewTravelClients(cfg.Travel), resilience.FallbackConfig{})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reg.Statuses())
			}
			printStatuses(cmd.OutOrStdout(), reg.Statuses())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// printStatuses writes one aligned row per tool.
func printStatuses(w io.Writer, statuses []tool.Status) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tSTATUS\tREASON")
	for _, s := range statuses {
		state := "ready"
		if !s.Configured {
			state = "unconfigured"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, state, s.Reason)
	}
	_ = tw.Flush()
}
