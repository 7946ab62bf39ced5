package main

import (
	"fmt"
	"io"
	"os"

	"catalog-import-service/internal/catalog"
	"catalog-import-service/internal/models"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	profilePath  string
	delimiter    string
	uniqueKey    string
	encoding     string
	sheet        string
	validateOnly bool
	maxErrors    int
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Import a CSV or XLSX catalog file",
	Long:  "Reconciles every row of the file with the catalog and prints a summary. Exits non-zero when any row failed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	runCmd.Flags().StringVar(&profilePath, "options", "", "YAML options profile (delimiter, key, encoding, sheet)")
	runCmd.Flags().StringVarP(&delimiter, "delimiter", "d", ";", "CSV delimiter")
	runCmd.Flags().StringVarP(&uniqueKey, "key", "k", string(models.UniqueKeyArticle), "Unique key: article or slug")
	runCmd.Flags().StringVarP(&encoding, "encoding", "e", models.EncodingUTF8, "Input encoding: utf-8 or windows-1251")
	runCmd.Flags().StringVar(&sheet, "sheet", "", "XLSX sheet name (first sheet when empty)")
	runCmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Validate rows without writing")
	runCmd.Flags().IntVar(&maxErrors, "max-errors", 20, "Row errors to print")
}

// loadProfile reads import options from a YAML file.
func loadProfile(r io.Reader) (models.ImportOptions, error) {
	var opts models.ImportOptions
	if err := yaml.NewDecoder(r).Decode(&opts); err != nil && err != io.EOF {
		return opts, fmt.Errorf("invalid options profile: %w", err)
	}
	return opts, nil
}

// resolveRunOptions layers explicitly set flags over the profile.
func resolveRunOptions(cmd *cobra.Command) (models.ImportOptions, error) {
	var opts models.ImportOptions
	if profilePath != "" {
		f, err := os.Open(profilePath)
		if err != nil {
			return opts, err
		}
		defer f.Close()
		if opts, err = loadProfile(f); err != nil {
			return opts, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("delimiter") || opts.Delimiter == "" {
		opts.Delimiter = delimiter
	}
	if flags.Changed("key") || opts.Key == "" {
		opts.Key = models.UniqueKey(uniqueKey)
	}
	if flags.Changed("encoding") || opts.Encoding == "" {
		opts.Encoding = encoding
	}
	if flags.Changed("sheet") {
		opts.Sheet = sheet
	}
	if flags.Changed("validate-only") {
		opts.ValidateOnly = validateOnly
	}

	if opts.Key != models.UniqueKeyArticle && opts.Key != models.UniqueKeySlug {
		return opts, fmt.Errorf("unknown key %q", opts.Key)
	}
	return opts.WithDefaults(), nil
}

func runImport(cmd *cobra.Command, args []string) error {
	opts, err := resolveRunOptions(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	importer := catalog.NewImporter(s.store, s.logger)
	if verbose {
		importer.WithObserver(func(status string) {
			fmt.Fprint(cmd.ErrOrStderr(), ".")
		})
	}

	result, err := importer.ImportFile(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), args[0], opts, result, maxErrors)
	if result.FailedCount > 0 {
		return fmt.Errorf("%d of %d rows failed", result.FailedCount, result.TotalRows)
	}
	return nil
}

func printSummary(w io.Writer, file string, opts models.ImportOptions, result *models.ImportResult, limit int) {
	red := color.New(color.FgRed).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	blue := color.New(color.FgHiBlue).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	mode := "import"
	if opts.ValidateOnly {
		mode = "validation"
	}
	fmt.Fprintf(w, "%s %s (%s, key=%s)\n", blue("Catalog "+mode+":"), file, opts.Encoding, opts.Key)
	fmt.Fprintf(w, "  rows:     %d\n", result.TotalRows)
	fmt.Fprintf(w, "  success:  %s (created %d, updated %d)\n", green(result.SuccessCount), result.CreatedCount, result.UpdatedCount)
	if result.FailedCount > 0 {
		fmt.Fprintf(w, "  failed:   %s\n", red(result.FailedCount))
	} else {
		fmt.Fprintf(w, "  failed:   %d\n", 0)
	}
	fmt.Fprintf(w, "  warnings: %s\n", yellow(len(result.Warnings)))
	fmt.Fprintf(w, "  time:     %dms\n", result.ProcessingMs)

	for i, rowErr := range result.Errors {
		if i == limit {
			fmt.Fprintf(w, "  ... %d more\n", len(result.Errors)-limit)
			break
		}
		column := ""
		if rowErr.Column != "" {
			column = " [" + rowErr.Column + "]"
		}
		fmt.Fprintf(w, "  %s row %d%s %s: %s\n", red("✗"), rowErr.Row, column, rowErr.Code, rowErr.Message)
		for _, ref := range rowErr.CreatedRefs {
			fmt.Fprintf(w, "      left behind: %s\n", ref)
		}
	}
}
