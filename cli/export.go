package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	ContractID string
	Out        string
	Store      bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a contract to PDF",
		Long: `Render a stored contract, paginate it and write the PDF.

Example:
  contractsign export --id 3f2a... --out ./contract.pdf
  contractsign export --id 3f2a... --store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ContractID, "id", "", "contract id (required)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default contract-<id>.pdf)")
	cmd.Flags().BoolVar(&opts.Store, "store", false, "upload to the artifact bucket instead of writing a file")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return wrapExit(ExitCommandError, "failed to initialize services", err)
	}
	defer app.Close()

	if opts.Store && !app.Exporter.CanStore() {
		return wrapExit(ExitCommandError, "artifact storage is not configured", fmt.Errorf("minio.enabled is false"))
	}

	contract, err := app.Store.GetContract(ctx, opts.ContractID)
	if err != nil {
		return wrapExit(ExitCommandError, "failed to load contract", err)
	}

	res, err := app.Exporter.Export(ctx, contract)
	if err != nil {
		return wrapExit(ExitFailure, "export failed", err)
	}

	if opts.Store {
		artifact, err := app.Exporter.Store(ctx, contract, res)
		if err != nil {
			return wrapExit(ExitFailure, "upload failed", err)
		}
		return printResult(cmd.OutOrStdout(), opts.Format, artifact,
			fmt.Sprintf("uploaded %s (%d pages, %d bytes)", artifact.Key, res.Layout.PageCount(), artifact.Size),
			artifact.URL,
		)
	}

	out := opts.Out
	if out == "" {
		out = res.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return wrapExit(ExitCommandError, "failed to create output directory", err)
		}
	}
	if err := os.WriteFile(out, res.PDF, 0o644); err != nil {
		return wrapExit(ExitCommandError, "failed to write output", err)
	}

	summary := map[string]any{
		"contract_id": contract.ID,
		"file":        out,
		"pages":       res.Layout.PageCount(),
		"bytes":       len(res.PDF),
	}
	return printResult(cmd.OutOrStdout(), opts.Format, summary,
		fmt.Sprintf("wrote %s (%d pages, %d bytes)", out, res.Layout.PageCount(), len(res.PDF)),
	)
}
