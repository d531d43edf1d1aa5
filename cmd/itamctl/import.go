package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"itam-api/pkg/importer"
)

type importOptions struct {
	file      string
	orgID     int64
	mapping   string
	dryRun    bool
	maxErrors int
	asJSON    bool
}

func newImportCmd() *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import assets from an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.file, "file", "", "workbook to import")
	f.Int64Var(&opts.orgID, "org", 0, "target organization ID")
	f.StringVar(&opts.mapping, "mapping", importer.DefaultMapping, "embedded column mapping")
	f.BoolVar(&opts.dryRun, "dry-run", false, "validate and roll back")
	f.IntVar(&opts.maxErrors, "max-errors", 50, "abort after this many row errors")
	f.BoolVar(&opts.asJSON, "json", false, "print the summary as JSON")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func runImport(cmd *cobra.Command, opts *importOptions) error {
	if opts.orgID <= 0 {
		return fmt.Errorf("--org must be a positive organization ID")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return fmt.Errorf("DB_DSN environment variable is required")
	}

	file, err := os.Open(opts.file)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer file.Close()

	ctx := cmd.Context()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	summary, err := importer.ImportExcel(ctx, pool, file, importer.ImportOptions{
		OrgID:     opts.orgID,
		Mapping:   opts.mapping,
		DryRun:    opts.dryRun,
		MaxErrors: opts.maxErrors,
	})
	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			return encErr
		}
	} else {
		printSummary(cmd, summary)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, s importer.ImportSummary) {
	out := cmd.OutOrStdout()
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Batch %s (dry_run=%v)\n", s.BatchID, s.DryRun)
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Inserted: %d\nUpdated:  %d\nSkipped:  %d\nErrors:   %d\n", s.Inserted, s.Updated, s.Skipped, s.Errors)
	for _, sh := range s.Sheets {
		fmt.Fprintf(out, "\n%s: inserted=%d updated=%d skipped=%d errors=%d\n",
			sh.Name, sh.Inserted, sh.Updated, sh.Skipped, sh.Errors)
		for _, e := range sh.Samples {
			fmt.Fprintf(out, "  row %d: %s\n", e.Row, e.Message)
		}
	}
}
