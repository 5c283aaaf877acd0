package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/service"
)

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	var contractID string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Check outstanding signature requests with the provider",
		Long: `Ask the provider for the status of every outstanding signature
request and recompute the affected contracts. Without --id every contract
awaiting signatures is polled.

Example:
  contractsign poll
  contractsign poll --id 3f2a... --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			app, err := buildApp(ctx, cfg)
			if err != nil {
				return wrapExit(ExitCommandError, "failed to initialize services", err)
			}
			defer app.Close()

			var reports []*service.PollReport
			if contractID != "" {
				report, err := app.Orchestrator.Poll(ctx, contractID)
				if err != nil {
					return wrapExit(ExitFailure, "poll failed", err)
				}
				reports = []*service.PollReport{report}
			} else if reports, err = app.Orchestrator.PollAll(ctx); err != nil {
				return wrapExit(ExitFailure, "poll failed", err)
			}

			return printResult(cmd.OutOrStdout(), rootOpts.Format, reports, pollLines(reports)...)
		},
	}

	cmd.Flags().StringVar(&contractID, "id", "", "poll a single contract")

	return cmd
}

func pollLines(reports []*service.PollReport) []string {
	if len(reports) == 0 {
		return []string{"no contracts awaiting signatures"}
	}
	lines := make([]string, 0, len(reports))
	for _, r := range reports {
		lines = append(lines, fmt.Sprintf("%s: %s (checked %d, updated %d)", r.ContractID, r.Status, r.Checked, r.Updated))
		roles := make([]string, 0, len(r.Errors))
		for role := range r.Errors {
			roles = append(roles, string(role))
		}
		sort.Strings(roles)
		for _, role := range roles {
			lines = append(lines, fmt.Sprintf("  %s: %s", role, r.Errors[model.SignerRole(role)]))
		}
	}
	return lines
}
