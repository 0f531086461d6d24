package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ritza-co/bryntum-backend-guides/internal/export"
)

var (
	exportFormat string
	exportUpload bool
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of the configured backend",
	Long: `Render the current snapshot of the configured backend as json, ndjson
or html. The file goes to stdout, to --out, or with --upload to the
configured S3-compatible bucket.

Examples:
  crudsync export --format html --out gantt.html
  crudsync export --format ndjson --upload`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		rt, err := openRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.service.Export(ctx, export.Request{Format: format, Upload: exportUpload})
		if err != nil {
			return err
		}
		switch {
		case exportUpload:
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d rows to %s\n", result.Rows, result.ObjectKey)
		case exportOut != "":
			if err := os.WriteFile(exportOut, result.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", result.Rows, exportOut)
		default:
			_, err = cmd.OutOrStdout().Write(result.Data)
		}
		return err
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, ndjson or html")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "upload to the export bucket instead of writing locally")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
