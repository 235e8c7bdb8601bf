package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pingmatrix"
)

// exportCmd groups the export subcommands.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write log or config export files",
	Long: `Write the stored history or the current settings as a versioned JSON
export file, the same format served by GET /api/export/logs and
GET /api/export/config.

Example:
  pingmatrix export logs -c config.yaml -o logs.json
  pingmatrix export config -c config.yaml > settings.json`,
}

var exportLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Export stored history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, (*pingmatrix.Monitor).ExportLogs)
	},
}

var exportConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Export timers and presentation settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, (*pingmatrix.Monitor).ExportConfig)
	},
}

// importCmd groups the import subcommands.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Apply log or config export files",
	Long: `Validate an export file and apply it. A rejected file changes nothing.

Example:
  pingmatrix import logs -c config.yaml -f logs.json
  pingmatrix import config -c config.yaml -f settings.json`,
}

var importLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Replace stored history from a log export file",
	Long: `Validate a log export file and replace the stored history with its
entries. Entries outside the retention window are dropped.`,
	Args: cobra.NoArgs,
	RunE: runImportLogs,
}

var importConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Apply timers and presentation settings from a config export file",
	Long: `Validate a config export file and write its values to the settings
file. Requires settings_file in the config.`,
	Args: cobra.NoArgs,
	RunE: runImportConfig,
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
	exportCmd.AddCommand(exportLogsCmd, exportConfigCmd)
	importCmd.AddCommand(importLogsCmd, importConfigCmd)

	for _, c := range []*cobra.Command{exportLogsCmd, exportConfigCmd} {
		addConfigFlag(c)
		c.Flags().StringP("output", "o", "", "output file (default stdout)")
	}

	for _, c := range []*cobra.Command{importLogsCmd, importConfigCmd} {
		addConfigFlag(c)
		c.Flags().StringP("file", "f", "", "export file to import (required)")
		_ = c.MarkFlagRequired("file")
	}
}

func runExport(cmd *cobra.Command, export func(*pingmatrix.Monitor) ([]byte, error)) error {
	output, _ := cmd.Flags().GetString("output")

	return withMonitor(cmd, func(_ context.Context, m *pingmatrix.Monitor) error {
		data, err := export(m)
		if err != nil {
			return err
		}
		data = append(data, '\n')

		if output == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
		return nil
	})
}

func readImportFile(cmd *cobra.Command) ([]byte, error) {
	file, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return data, nil
}

func runImportLogs(cmd *cobra.Command, args []string) error {
	data, err := readImportFile(cmd)
	if err != nil {
		return err
	}

	return withMonitor(cmd, func(ctx context.Context, m *pingmatrix.Monitor) error {
		n, err := m.ImportLogs(ctx, data)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", pluralEntries(n))
		return nil
	})
}

func runImportConfig(cmd *cobra.Command, args []string) error {
	data, err := readImportFile(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.SettingsFile == "" {
		return errors.New("settings_file must be set to import a config file")
	}

	return withMonitor(cmd, func(ctx context.Context, m *pingmatrix.Monitor) error {
		if err := m.ImportConfig(ctx, data); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		timers := m.Timers()
		fmt.Fprintf(cmd.OutOrStdout(), "Imported config: interval %s, timeout %s, synced %v\n",
			timers.Interval, timers.Timeout, timers.Sync)
		return nil
	})
}
