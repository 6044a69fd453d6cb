package cmd

import (
	"context"
	"fmt"

	"fileno-manager/core/control"
	"fileno-manager/core/reconcile"
	"fileno-manager/feature/filenumber"
	"fileno-manager/feature/grouping"
	"fileno-manager/feature/importer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the reconcile command
	recSource          string
	recSheet           string
	recTag             string
	recLimit           int
	recDryRun          bool
	recSkipExisting    bool
	recReadBatch       int
	recLookupChunk     int
	recUpdateBatch     int
	recInsertBatch     int
	recGroupingsTable  string
	recResultsTable    string
	recCreatedBy       string
	recResultType      string
	recResultSourceTag string
)

// reconcileCmd imports an allotment export against the identifier table.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile an allotment export against generated file numbers",
	Long: `Read a CSV or XLSX export, link every row to its generated identifier,
write result rows and mark matched identifiers as mapped.

A run holds the lock on the identifier table. Use "fileno run cancel <id>"
from another shell to stop it between batches.

Examples:
  # Preview matches without writing
  reconcile --source export.xlsx --dry-run

  # Tagged test import of the first 1000 rows
  reconcile --source export.csv --tag TEST-01 --limit 1000

  # Import straight from object storage
  reconcile --source s3://imports/2024/export.xlsx --skip-existing`,
	RunE: runReconcile,
}

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&recSource, "source", "", "CSV/XLSX path or s3://bucket/key (required)")
	f.StringVar(&recSheet, "sheet", "", "XLSX sheet (default first sheet)")
	f.StringVar(&recTag, "tag", "", "Control tag stamped on every row written")
	f.IntVar(&recLimit, "limit", 0, "Read at most this many rows (0 = all)")
	f.BoolVar(&recDryRun, "dry-run", false, "Look up matches without writing")
	f.BoolVar(&recSkipExisting, "skip-existing", false, "Skip references already imported under the same tag")
	f.IntVar(&recReadBatch, "read-batch", 0, "Rows per reconciliation batch")
	f.IntVar(&recLookupChunk, "lookup-chunk", 0, "Keys per lookup query")
	f.IntVar(&recUpdateBatch, "update-batch", 0, "Mappings per update transaction")
	f.IntVar(&recInsertBatch, "insert-batch", 0, "Result rows per insert transaction")
	addTableFlags(f)
	f.StringVar(&recCreatedBy, "created-by", "", "created_by value for result rows")
	f.StringVar(&recResultType, "result-type", "", "type value for result rows")
	f.StringVar(&recResultSourceTag, "result-source", "", "source value for result rows")
	_ = reconcileCmd.MarkFlagRequired("source")

	RootCmd.AddCommand(reconcileCmd)
}

// addTableFlags registers the table name overrides shared by import commands.
func addTableFlags(f interface {
	StringVar(p *string, name, value, usage string)
}) {
	f.StringVar(&recGroupingsTable, "groupings-table", "", "Identifier table")
	f.StringVar(&recResultsTable, "results-table", "", "Result table")
}

// importConfig applies flag overrides on top of the loaded import section.
func (e *env) importConfig() importer.Config {
	c := e.cfg.Import
	if recReadBatch > 0 {
		c.ReadBatch = recReadBatch
	}
	if recLookupChunk > 0 {
		c.LookupChunkSize = recLookupChunk
	}
	if recUpdateBatch > 0 {
		c.UpdateBatchSize = recUpdateBatch
	}
	if recInsertBatch > 0 {
		c.InsertBatchSize = recInsertBatch
	}
	if recSkipExisting {
		c.SkipExisting = true
	}
	if recResultsTable != "" {
		c.ResultTable = recResultsTable
	}
	return c
}

func (e *env) groupingsTable() string {
	if recGroupingsTable != "" {
		return recGroupingsTable
	}
	return e.cfg.Numbering.Table
}

// importService wires both stores into an import service.
func (e *env) importService() *importer.Service {
	cfg := e.importConfig()

	prov := filenumber.DefaultProvenance()
	if recCreatedBy != "" {
		prov.CreatedBy = recCreatedBy
	}
	if recResultType != "" {
		prov.Type = recResultType
	}
	if recResultSourceTag != "" {
		prov.Source = recResultSourceTag
	}

	groupings := grouping.NewStore(e.db, e.groupingsTable(), e.log)
	results := filenumber.NewStore(e.db, cfg.ResultTable, prov, e.log)
	return importer.NewService(e.db, groupings, results, cfg, e.log, e.metrics,
		importer.WithArchive(e.storage, e.cfg.Storage.Bucket, e.cfg.Storage.ReportPrefix),
	)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	svc := e.importService()
	if !recDryRun {
		if err := svc.Migrate(ctx); err != nil {
			return err
		}
	}

	s := e.newSession("reconcile", e.groupingsTable(), recTag)
	run := reconcile.NewRun(recTag, reconcile.WithRunID(s.id), reconcile.WithReporter(s.reporter))

	var report *importer.Report
	err = s.run(ctx, run.Cancel, func(ctx context.Context) (control.State, map[string]int, error) {
		var err error
		report, err = svc.Import(ctx, run, importer.ImportOptions{
			Source: recSource,
			Sheet:  recSheet,
			Limit:  recLimit,
			DryRun: recDryRun,
		})
		if report == nil {
			return stateOf(err), nil, err
		}
		return control.State(report.Status), report.Counts(), err
	})
	if report != nil {
		printImportReport(e.log, report)
	}
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	if report != nil && report.Status == reconcile.StatusCancelled {
		e.log.Warn("Reconciliation cancelled. Staged mappings were flushed; rerun to continue.")
	}
	return nil
}

// printImportReport prints a formatted import report using logger.
func printImportReport(l *zap.Logger, r *importer.Report) {
	l.Info("Reconciliation report",
		zap.String("run_id", r.RunID),
		zap.String("status", string(r.Status)),
		zap.String("source", r.Source),
		zap.String("encoding", r.Encoding),
		zap.String("control_tag", r.Tag),
		zap.Int("batches", r.Batches),
		zap.Int("total_records", r.Total),
		zap.Int("skipped_records", r.Skipped),
		zap.Int("duplicate_records", r.Duplicates),
		zap.Int("already_imported", r.AlreadyImported),
		zap.Int("matched_records", r.Matched),
		zap.Int("unmatched_records", r.Unmatched),
		zap.Int("inserted_records", r.Inserted),
		zap.Int("mappings_flushed", r.MappingsFlushed),
		zap.Duration("duration", r.Duration),
	)
	if r.DryRun {
		l.Info("Dry-run mode: No changes were made.")
	}
	if r.Archive != "" {
		l.Info("Report archived", zap.String("location", r.Archive))
	}
	if r.Total > 0 {
		l.Info("Match rate", zap.String("matched", fmt.Sprintf("%.1f%%", float64(r.Matched)*100/float64(r.Total))))
	}
}
