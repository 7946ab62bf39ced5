package main

import (
	"fmt"
	"os"
	"strings"

	"catalog-import-service/internal/catalog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var exportDelimiter string

var exportCmd = &cobra.Command{
	Use:   "export <out.csv|out.xlsx>",
	Short: "Export the catalog in the import layout",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var templateCmd = &cobra.Command{
	Use:   "template <out.csv|out.xlsx>",
	Short: "Write an empty import template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplate,
}

func init() {
	exportCmd.Flags().StringVarP(&exportDelimiter, "delimiter", "d", ";", "CSV delimiter")
	templateCmd.Flags().StringVarP(&exportDelimiter, "delimiter", "d", ";", "CSV delimiter")
}

func isXLSX(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".xlsx")
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	out, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer out.Close()

	exporter := catalog.NewExporter(s.store, s.logger)
	var count int
	if isXLSX(args[0]) {
		count, err = exporter.WriteXLSX(cmd.Context(), out)
	} else {
		count, err = exporter.WriteCSV(cmd.Context(), out, exportDelimiter)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %d products written to %s\n", color.GreenString("✓"), count, args[0])
	return nil
}

func runTemplate(cmd *cobra.Command, args []string) error {
	out, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer out.Close()

	if isXLSX(args[0]) {
		err = catalog.WriteTemplateXLSX(out)
	} else {
		err = catalog.WriteTemplateCSV(out, exportDelimiter)
	}
	if err != nil {
		return err
	}
	return out.Close()
}
