package cmd

import (
	"context"
	"fmt"

	"fileno-manager/core/control"
	"fileno-manager/feature/grouping"
	"fileno-manager/feature/numbering"
	"fileno-manager/feature/tracking"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	genCategories     []string
	genMaxPerCategory int
	genWindows        []string
	genGuarantee      string
	genBatchSize      int
	genLayout         string
	genTable          string
	genClear          bool
	genDryRun         bool
)

// generateCmd fills the identifier table.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate file numbers into the identifier table",
	Long: `Generate file numbers registry by registry, category by category,
year by year, and insert them in batches.

Examples:
  # Full default layout
  fileno generate

  # A capped sample of two categories
  fileno generate --categories RES,COM --max-per-category 500 --dry-run

  # Move 1992 into registry 1 and replace what was generated before
  fileno generate --window 1=1981-1992 --window 2=1993-2025 --clear --yes`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringSliceVar(&genCategories, "categories", nil, "Only generate these categories")
	f.IntVar(&genMaxPerCategory, "max-per-category", 0, "Cap records per category and registry (0 = no cap)")
	f.StringArrayVar(&genWindows, "window", nil, "Registry year window, e.g. 1=1981-1991 (repeatable)")
	f.StringVar(&genGuarantee, "guarantee", "", "Tracking id uniqueness: probabilistic, run or persisted")
	f.IntVar(&genBatchSize, "batch-size", 0, "Identifiers per insert transaction")
	f.StringVar(&genLayout, "layout", "", "YAML layout file")
	f.StringVar(&genTable, "table", "", "Identifier table")
	f.BoolVar(&genClear, "clear", false, "Delete previously generated identifiers first")
	f.BoolVar(&genDryRun, "dry-run", false, "Generate without writing")
	f.BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")

	RootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := setup(ctx, !genDryRun)
	if err != nil {
		return err
	}
	defer e.close()

	// Step 1: Resolve layout, windows and guarantee
	ncfg := e.cfg.Numbering
	if genLayout != "" {
		ncfg.LayoutFile = genLayout
	}
	if genTable != "" {
		ncfg.Table = genTable
	}
	if genGuarantee != "" {
		ncfg.Guarantee = genGuarantee
	}
	if genBatchSize > 0 {
		ncfg.InsertBatch = genBatchSize
	}

	layout, err := ncfg.Layout()
	if err != nil {
		return err
	}
	for _, w := range genWindows {
		window, err := numbering.ParseWindow(w)
		if err != nil {
			return err
		}
		layout.SetWindow(window)
	}
	if err := layout.Validate(); err != nil {
		return err
	}
	guarantee, err := tracking.ParseGuarantee(ncfg.Guarantee)
	if err != nil {
		return err
	}

	// Step 2: Wire store, allocator and generator
	var store *grouping.Store
	allocOpts := []tracking.Option{tracking.WithGuarantee(guarantee)}
	if e.db != nil {
		store = grouping.NewStore(e.db, ncfg.Table, e.log)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		allocOpts = append(allocOpts, tracking.WithChecker(store))
	}
	alloc := tracking.NewAllocator(allocOpts...)
	gen := numbering.NewGenerator(layout, alloc, e.log, e.metrics)

	opts := grouping.SeedOptions{
		Options: numbering.Options{
			Categories:     genCategories,
			MaxPerCategory: genMaxPerCategory,
		},
		BatchSize: ncfg.InsertBatch,
		Clear:     genClear,
		DryRun:    genDryRun,
	}
	e.log.Info("Generation plan",
		zap.Int("expected_records", gen.Total(opts.Options)),
		zap.String("guarantee", string(guarantee)),
		zap.String("table", ncfg.Table),
		zap.Bool("dry_run", genDryRun),
	)

	if genClear && !genDryRun && !confirmDestructiveAction(fmt.Sprintf("This deletes every generated identifier in %s.", ncfg.Table)) {
		e.log.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	// Step 3: Run
	s := e.newSession("generate", ncfg.Table, "")
	var result *grouping.SeedResult
	err = s.run(ctx, nil, func(ctx context.Context) (control.State, map[string]int, error) {
		var err error
		result, err = grouping.NewSeeder(store, gen, alloc, s.log).Seed(ctx, nil, opts, s.reporter)
		if result == nil {
			return stateOf(err), nil, err
		}
		return stateOf(err), map[string]int{
			"generated": result.Generated,
			"inserted":  result.Inserted,
			"cleared":   int(result.Cleared),
		}, err
	})
	if result != nil {
		printGenerationReport(e.log, result)
	}
	return err
}

func printGenerationReport(l *zap.Logger, res *grouping.SeedResult) {
	st := res.Stats
	l.Info("Generation report",
		zap.Int("generated", res.Generated),
		zap.Int("inserted", res.Inserted),
		zap.Int64("cleared", res.Cleared),
		zap.Int("min_year", st.MinYear),
		zap.Int("max_year", st.MaxYear),
		zap.Int("min_group", st.MinGroup),
		zap.Int("max_group", st.MaxGroup),
		zap.Duration("duration", res.Duration),
	)
	for registry, n := range st.Registries {
		l.Info("Registry total", zap.String("registry", registry), zap.Int("records", n))
	}
	for landUse, n := range st.LandUses {
		l.Info("Land use total", zap.String("land_use", landUse), zap.Int("records", n))
	}
}
