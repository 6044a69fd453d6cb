package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"fileno-manager/core/control"
	"fileno-manager/feature/recalc"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	recalcRegistries  []string
	recalcWindowSize  int
	recalcGroupSize   int
	recalcSampleSize  int
	recalcTable       string
	recalcApply       bool
	recalcKeepColumns bool
)

// recalcCmd renumbers the identifier table in registry order.
var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recalculate global sequence, group and batch numbers",
	Long: `Rank identifiers per registry by id and derive continuous global
sequence, group, batch and registry batch numbers into work columns.
Results are verified and only copied onto the live columns with --apply.

Examples:
  # Compute and verify, leaving live numbers untouched
  recalc

  # Custom registry order
  recalc --registries 1,3,2,4

  # Compute, verify and apply without prompting
  recalc --apply --yes`,
	RunE: runRecalc,
}

func init() {
	f := recalcCmd.Flags()
	f.StringSliceVar(&recalcRegistries, "registries", nil, "Registry order (default numeric order of registries in the table)")
	f.IntVar(&recalcWindowSize, "window-size", 0, "Ranked rows per transaction")
	f.IntVar(&recalcGroupSize, "group-size", 0, "Rows per group and batch")
	f.IntVar(&recalcSampleSize, "sample-size", 0, "Verification rows per registry")
	f.StringVar(&recalcTable, "table", "", "Identifier table")
	f.BoolVar(&recalcApply, "apply", false, "Copy verified numbers onto the live columns")
	f.BoolVar(&recalcKeepColumns, "keep-columns", false, "Keep work columns after apply")
	f.BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")

	RootCmd.AddCommand(recalcCmd)
}

func runRecalc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	rcfg := e.cfg.Recalc
	if recalcWindowSize > 0 {
		rcfg.WindowSize = recalcWindowSize
	}
	if recalcGroupSize > 0 {
		rcfg.GroupSize = recalcGroupSize
	}
	if recalcSampleSize > 0 {
		rcfg.SampleSize = recalcSampleSize
	}
	table := e.cfg.Numbering.Table
	if recalcTable != "" {
		table = recalcTable
	}

	rc := recalc.New(e.db, table, rcfg.Options(), e.log, e.metrics)

	// Step 1: Work columns and plan
	if err := rc.PrepareColumns(ctx); err != nil {
		return err
	}
	plan, err := rc.PlanFromTable(ctx)
	if err != nil {
		return err
	}
	if len(recalcRegistries) > 0 {
		plan.Order = recalcRegistries
		var omitted []string
		for id, n := range plan.Counts {
			if n > 0 && !slices.Contains(plan.Order, id) {
				omitted = append(omitted, id)
			}
		}
		if len(omitted) > 0 {
			e.log.Warn("Registries left out of the order keep no work values; --apply will be refused",
				zap.Strings("omitted", recalc.SortRegistries(omitted)))
		}
	}
	for _, id := range plan.Order {
		e.log.Info("Registry planned", zap.String("registry", id), zap.Int("records", plan.Counts[id]))
	}

	// Step 2: Recalculate under the table lock
	s := e.newSession("recalc", table, "")
	var res *recalc.Result
	err = s.run(ctx, nil, func(ctx context.Context) (control.State, map[string]int, error) {
		var err error
		res, err = rc.Recalculate(ctx, plan, s.reporter)
		if res == nil {
			return stateOf(err), nil, err
		}
		state := stateOf(err)
		if err == nil && res.Halted {
			state = control.StateFailed
		}
		return state, map[string]int{"rows_updated": res.Updated, "registries": len(res.Registries)}, err
	})
	if res != nil {
		printRecalcResult(e.log, res)
	}
	if err != nil {
		return fmt.Errorf("recalculation failed: %w", err)
	}

	// Step 3: Verify
	v, err := rc.Verify(ctx, plan, rcfg.SampleSize)
	if err != nil {
		return err
	}
	printVerification(e.log, v)

	// Step 4: Apply (if requested and confirmed)
	if !recalcApply {
		e.log.Info("Work columns kept for inspection. Use --apply to copy them onto the live columns.")
		return nil
	}
	if res.Halted {
		return fmt.Errorf("refusing to apply: %w", recalc.ErrIncomplete)
	}
	if !confirmDestructiveAction(fmt.Sprintf("This overwrites sequence, group and batch numbers of %d rows in %s.", res.Updated, table)) {
		e.log.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}
	n, err := rc.Apply(ctx, res)
	if errors.Is(err, recalc.ErrIncomplete) || errors.Is(err, recalc.ErrStale) {
		return fmt.Errorf("refusing to apply: %w", err)
	}
	if err != nil {
		return err
	}
	e.log.Info("Successfully applied recalculated numbers", zap.Int64("rows", n))

	if recalcKeepColumns {
		return nil
	}
	return rc.DropColumns(ctx)
}

func printRecalcResult(l *zap.Logger, res *recalc.Result) {
	for _, r := range res.Registries {
		fields := []zap.Field{
			zap.String("registry", r.Registry),
			zap.Int("records", r.Count),
			zap.Int("offset", r.Offset),
			zap.Int("windows", r.Windows),
			zap.Int("updated", r.Updated),
		}
		if r.Halted {
			l.Error("Registry halted", append(fields, zap.String("error", r.Error))...)
			continue
		}
		l.Info("Registry recalculated", fields...)
	}
	l.Info("Recalculation report",
		zap.Int("rows_updated", res.Updated),
		zap.Bool("halted", res.Halted),
		zap.Duration("duration", res.Duration),
	)
}

func printVerification(l *zap.Logger, v *recalc.Verification) {
	for registry, rows := range v.Samples {
		for _, r := range rows {
			l.Info("Sample",
				zap.String("registry", registry),
				zap.Int64("id", r.ID),
				zap.Int("global_sequence", r.GlobalSequence),
				zap.Int("group_number", r.GroupNumber),
				zap.Int("batch_number", r.BatchNumber),
				zap.Int("registry_batch_number", r.RegistryBatchNumber),
			)
		}
	}
	for _, b := range v.Boundaries {
		for _, r := range b.Rows {
			l.Info("Boundary",
				zap.String("from", b.From),
				zap.String("to", b.To),
				zap.String("registry", r.Registry),
				zap.Int("global_sequence", r.GlobalSequence),
				zap.Int("group_number", r.GroupNumber),
			)
		}
	}

	fmt.Println("\n=== Recalculation Verification ===")
	fmt.Printf("Rows: %d\n", v.Total)
	fmt.Printf("Global Sequence: %d - %d\n", v.Global.Min, v.Global.Max)
	fmt.Printf("Group Number: %d - %d\n", v.Group.Min, v.Group.Max)
	fmt.Printf("Batch Number: %d - %d\n", v.Batch.Min, v.Batch.Max)
	fmt.Printf("Registry Batch Number: %d - %d\n", v.RegistryBatch.Min, v.RegistryBatch.Max)
}
