package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"fileno-manager/feature/integrity"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fixFlag       bool
	integrityJSON bool
)

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check table schemas and the report bucket",
	Long: `Compares the identifier and result tables with their models and checks
that the report bucket exists. Use --fix to create a missing bucket.`,
	RunE: runIntegrity,
}

func init() {
	integrityCmd.Flags().BoolVar(&fixFlag, "fix", false, "Create a missing report bucket")
	integrityCmd.Flags().BoolVar(&integrityJSON, "json", false, "Output detailed JSON format")
	addTableFlags(integrityCmd.Flags())

	RootCmd.AddCommand(integrityCmd)
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := time.Now()

	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	e.log.Info("Running integrity checks...")
	svc := integrity.NewService(e.db, e.storage, e.cfg.Storage.Bucket, integrity.Tables{
		Groupings: e.groupingsTable(),
		Results:   e.importConfig().ResultTable,
	}, e.log)
	report := svc.RunAll(ctx, fixFlag)

	if report.Schema != nil {
		for table, t := range report.Schema.Tables {
			fields := []zap.Field{zap.String("table", table), zap.String("model", t.Model)}
			if t.Status == "ok" {
				e.log.Info("Schema matches", fields...)
				continue
			}
			e.log.Warn("Schema drift detected", append(fields,
				zap.Strings("missing_columns", t.MissingColumns),
				zap.Strings("type_mismatches", t.TypeMismatches),
			)...)
		}
		for _, msg := range report.Schema.Errors {
			e.log.Warn("Schema error", zap.String("error", msg))
		}
	}
	switch {
	case report.ArchiveExists == nil:
		e.log.Info("Report archiving disabled, bucket check skipped.")
	case *report.ArchiveExists:
		e.log.Info("Report bucket is present.", zap.String("bucket", e.cfg.Storage.Bucket))
	case report.ArchiveFixed:
		e.log.Info("Report bucket created.", zap.String("bucket", e.cfg.Storage.Bucket))
	default:
		e.log.Warn("Report bucket is missing. Run with --fix to create it.", zap.String("bucket", e.cfg.Storage.Bucket))
	}
	for _, msg := range report.Errors {
		e.log.Error("Check failed", zap.String("error", msg))
	}

	if integrityJSON {
		filename := fmt.Sprintf("integrity_%d.json", time.Now().Unix())
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		if err := os.WriteFile(filename, data, 0644); err != nil {
			return fmt.Errorf("failed to save JSON file: %w", err)
		}
		e.log.Info("Detailed JSON report saved", zap.String("file", filename))
	}

	e.log.Info("Integrity checks completed", zap.Bool("healthy", report.Healthy()), zap.Duration("execution_time", time.Since(startTime)))
	if !report.Healthy() {
		return errors.New("integrity checks failed")
	}
	return nil
}
