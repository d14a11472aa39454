package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/novelboard/internal/config"
	"github.com/MarcoPoloResearchLab/novelboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/novelboard/internal/logging"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newImportCatalogCommand() *cobra.Command {
	var workbookPath string
	cmd := &cobra.Command{
		Use:   "import-catalog",
		Short: "Load the submission catalog from an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadStorage(viper.GetViper())
			if err != nil {
				return err
			}
			if workbookPath == "" {
				workbookPath = appConfig.WorkbookPath
			}
			if workbookPath == "" {
				return fmt.Errorf("--workbook or catalog.workbook_path is required")
			}

			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := openDatabase(appConfig, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			app, err := buildComponents(appConfig, db, logger)
			if err != nil {
				return err
			}

			file, err := os.Open(workbookPath)
			if err != nil {
				return err
			}
			defer file.Close()

			imported, err := app.catalog.ImportWorkbook(cmd.Context(), file)
			if err != nil {
				return err
			}
			logger.Info("catalog imported", zap.String("workbook", workbookPath), zap.Int("rows", imported))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d submissions\n", imported)
			return nil
		},
	}
	cmd.Flags().StringVar(&workbookPath, "workbook", "", "Path to the catalog workbook (defaults to catalog.workbook_path)")
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		format     string
		outputPath string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every classified submission to a csv or xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			write, err := exportWriterFor(format)
			if err != nil {
				return err
			}
			if outputPath == "" {
				return fmt.Errorf("--output is required")
			}

			appConfig, err := config.LoadStorage(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := openDatabase(appConfig, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			app, err := buildComponents(appConfig, db, logger)
			if err != nil {
				return err
			}

			rows, err := app.service.Export(cmd.Context())
			if err != nil {
				return err
			}
			var buffer bytes.Buffer
			if err := write(&buffer, rows); err != nil {
				return err
			}
			if err := atomic.WriteFile(outputPath, &buffer); err != nil {
				return err
			}
			logger.Info("export written", zap.String("path", outputPath), zap.String("format", format), zap.Int("rows", len(rows)))
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d submissions to %s\n", len(rows), outputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "Export format (csv, xlsx)")
	cmd.Flags().StringVar(&outputPath, "output", "", "Destination file")
	return cmd
}

func exportWriterFor(format string) (func(*bytes.Buffer, []dashboard.ExportRow) error, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return func(buffer *bytes.Buffer, rows []dashboard.ExportRow) error {
			return dashboard.WriteCSV(buffer, rows)
		}, nil
	case "xlsx":
		return func(buffer *bytes.Buffer, rows []dashboard.ExportRow) error {
			return dashboard.WriteWorkbook(buffer, rows)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
