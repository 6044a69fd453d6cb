package recalc

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"fileno-manager/core/database"
	"fileno-manager/core/metrics"
	"fileno-manager/core/progress"
	"fileno-manager/core/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrIncomplete is returned by Apply when a registry halted before finishing.
	ErrIncomplete = errors.New("recalculation incomplete")
	// ErrStale is returned by Apply when the work columns do not hold one
	// complete pass over the table.
	ErrStale = errors.New("work columns do not cover the table")
)

// Work columns hold recomputed values until Apply copies them over.
const (
	ColumnGlobal        = "new_global_sequence"
	ColumnGroup         = "new_group_number"
	ColumnBatch         = "new_batch_number"
	ColumnRegistryBatch = "new_registry_batch_number"
)

// WorkColumns lists the work columns in DDL order.
var WorkColumns = []string{ColumnGlobal, ColumnGroup, ColumnBatch, ColumnRegistryBatch}

// Options controls window and group sizes.
type Options struct {
	// WindowSize is the number of ranked rows per transaction.
	WindowSize int
	// GroupSize is the number of rows per group and batch.
	GroupSize int
}

// DefaultOptions returns windows and groups of 100.
func DefaultOptions() Options {
	return Options{WindowSize: 100, GroupSize: 100}
}

// Plan is the registry order and the row count of each registry.
type Plan struct {
	Order  []string
	Counts map[string]int
}

// RegistryResult reports one registry.
type RegistryResult struct {
	Registry string `json:"registry"`
	Count    int    `json:"count"`
	// Offset is the global offset the registry started from.
	Offset  int `json:"offset"`
	Windows int `json:"windows_committed"`
	Updated int `json:"rows_updated"`
	// Halted is set when a window failed. Later windows were not attempted.
	Halted bool   `json:"halted"`
	Error  string `json:"error,omitempty"`
}

// Result reports a recalculation.
type Result struct {
	Registries []RegistryResult `json:"registries"`
	Updated    int              `json:"rows_updated"`
	Halted     bool             `json:"halted"`
	Duration   time.Duration    `json:"duration"`
}

// Recalculator re-derives numbering for rows already in the identifier table.
type Recalculator struct {
	db      *gorm.DB
	table   string
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New creates a recalculator on table.
func New(db *gorm.DB, table string, opts Options, log *zap.Logger, m *metrics.Metrics) *Recalculator {
	d := DefaultOptions()
	if opts.WindowSize <= 0 {
		opts.WindowSize = d.WindowSize
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = d.GroupSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recalculator{db: db, table: table, opts: opts, log: log, metrics: m}
}

// PrepareColumns adds the work columns that are missing.
func (r *Recalculator) PrepareColumns(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	missing, err := database.MissingColumns(db, r.table, WorkColumns)
	if err != nil {
		return err
	}
	for _, col := range missing {
		err := db.Exec("ALTER TABLE ? ADD COLUMN ? INT NULL", clause.Table{Name: r.table}, clause.Column{Name: col}).Error
		if err != nil {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
		r.log.Info("Added work column", zap.String("table", r.table), zap.String("column", col))
	}
	return nil
}

// DropColumns removes the work columns that exist.
func (r *Recalculator) DropColumns(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	missing, err := database.MissingColumns(db, r.table, WorkColumns)
	if err != nil {
		return err
	}
	for _, col := range WorkColumns {
		if slices.Contains(missing, col) {
			continue
		}
		if err := db.Exec("ALTER TABLE ? DROP COLUMN ?", clause.Table{Name: r.table}, clause.Column{Name: col}).Error; err != nil {
			return fmt.Errorf("failed to drop column %s: %w", col, err)
		}
		r.log.Info("Dropped work column", zap.String("table", r.table), zap.String("column", col))
	}
	return nil
}

// RegistryCounts reads the row count of every registry.
func (r *Recalculator) RegistryCounts(ctx context.Context) (map[string]int, error) {
	var rows []map[string]any
	err := r.db.WithContext(ctx).Table(r.table).
		Select("registry, COUNT(*) AS row_count").
		Group("registry").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count registries: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[utils.ToString(row["registry"])] = utils.ToInt(row["row_count"])
	}
	return counts, nil
}

// SortRegistries orders registry ids numerically, falling back to text order.
func SortRegistries(ids []string) []string {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b string) int {
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		switch {
		case aerr == nil && berr == nil:
			return cmp.Compare(ai, bi)
		case aerr == nil:
			return -1
		case berr == nil:
			return 1
		}
		return cmp.Compare(a, b)
	})
	return out
}

// PlanFromTable builds a plan from the table's registry counts.
func (r *Recalculator) PlanFromTable(ctx context.Context) (Plan, error) {
	counts, err := r.RegistryCounts(ctx)
	if err != nil {
		return Plan{}, err
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	return Plan{Order: SortRegistries(ids), Counts: counts}, nil
}

type ranked struct {
	ID   int64 `gorm:"column:id"`
	Rank int   `gorm:"column:rn"`
}

// clearWorkColumns drops values left by an earlier pass.
func (r *Recalculator) clearWorkColumns(ctx context.Context) error {
	err := r.db.WithContext(ctx).Exec("UPDATE ? SET ? = NULL, ? = NULL, ? = NULL, ? = NULL",
		clause.Table{Name: r.table},
		clause.Column{Name: ColumnGlobal},
		clause.Column{Name: ColumnGroup},
		clause.Column{Name: ColumnBatch},
		clause.Column{Name: ColumnRegistryBatch},
	).Error
	if err != nil {
		return fmt.Errorf("failed to clear work columns: %w", err)
	}
	return nil
}

// Recalculate clears the work columns, then fills them registry by registry. Each window of
// ranked rows commits on its own; a failing window is rolled back and stops
// its registry, and processing moves on to the next one. Cancelling ctx
// stops between windows with ctx's error.
func (r *Recalculator) Recalculate(ctx context.Context, plan Plan, rep *progress.Reporter) (*Result, error) {
	start := time.Now()
	res := &Result{}
	status := "succeeded"
	defer func() {
		res.Duration = time.Since(start)
		r.metrics.SetRunDuration("recalc", status, res.Duration)
	}()

	totalWindows := 0
	for _, reg := range plan.Order {
		totalWindows += (plan.Counts[reg] + r.opts.WindowSize - 1) / r.opts.WindowSize
	}
	stage := rep.Stage(progress.PhaseRecompute, 0, 100)
	done := 0

	if err := ctx.Err(); err != nil {
		status = "cancelled"
		return res, err
	}
	if err := r.clearWorkColumns(ctx); err != nil {
		status = "failed"
		return res, err
	}

	offset := 0
	for _, reg := range plan.Order {
		count := plan.Counts[reg]
		rr := RegistryResult{Registry: reg, Count: count, Offset: offset}
		log := r.log.With(zap.String("registry", reg))

		if count == 0 {
			log.Warn("No records found for registry")
			res.Registries = append(res.Registries, rr)
			continue
		}

		windows := (count + r.opts.WindowSize - 1) / r.opts.WindowSize
		log.Info("Recalculating registry",
			zap.Int("records", count),
			zap.Int("windows", windows),
			zap.Int("offset", offset),
		)

		for w := 0; w < windows; w++ {
			if err := ctx.Err(); err != nil {
				status = "cancelled"
				res.Registries = append(res.Registries, rr)
				return res, err
			}

			from := w*r.opts.WindowSize + 1
			to := min(from+r.opts.WindowSize-1, count)
			n, err := r.window(ctx, reg, offset, from, to)
			r.metrics.IncWindow(reg, err == nil)
			if err != nil {
				rr.Halted = true
				rr.Error = err.Error()
				res.Halted = true
				log.Error("Window failed, registry halted",
					zap.Int("window", w+1),
					zap.Int("from_rank", from),
					zap.Int("to_rank", to),
					zap.Error(err),
				)
				done += windows - w
				break
			}

			rr.Windows++
			rr.Updated += n
			res.Updated += n
			done++
			stage.Update(fmt.Sprintf("Registry %s: window %d/%d", reg, w+1, windows), done, totalWindows)
		}

		offset += count
		res.Registries = append(res.Registries, rr)
		log.Info("Registry recalculated",
			zap.Int("windows_committed", rr.Windows),
			zap.Int("rows_updated", rr.Updated),
			zap.Int("last_global_sequence", offset),
			zap.Bool("halted", rr.Halted),
		)
	}

	if res.Halted {
		status = "failed"
	}
	stage.Done(fmt.Sprintf("Recalculated %d rows", res.Updated))
	return res, nil
}

// window ranks the rows of registry and updates those ranked from..to in one transaction.
func (r *Recalculator) window(ctx context.Context, registry string, offset, from, to int) (int, error) {
	updated := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []ranked
		err := tx.Raw(
			"SELECT id, rn FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY id) AS rn FROM ? WHERE registry = ?) ranked WHERE rn BETWEEN ? AND ? ORDER BY rn",
			clause.Table{Name: r.table}, registry, from, to,
		).Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to rank rows: %w", err)
		}

		g := r.opts.GroupSize
		for _, row := range rows {
			global := row.Rank + offset
			group := ((global - 1) / g) + 1
			err := tx.Table(r.table).Where("id = ?", row.ID).Updates(map[string]any{
				ColumnGlobal:        global,
				ColumnGroup:         group,
				ColumnBatch:         group,
				ColumnRegistryBatch: ((row.Rank - 1) / g) + 1,
			}).Error
			if err != nil {
				return fmt.Errorf("failed to update row %d: %w", row.ID, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Apply copies the work columns onto the permanent columns in one statement.
// It refuses to run when res reports a halted registry, and when the filled
// work rows are not exactly res.Updated and every row of the table.
func (r *Recalculator) Apply(ctx context.Context, res *Result) (int64, error) {
	if res == nil || res.Halted {
		return 0, ErrIncomplete
	}

	var applied int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total, filled int64
		if err := tx.Table(r.table).Count(&total).Error; err != nil {
			return fmt.Errorf("failed to count rows: %w", err)
		}
		if err := tx.Table(r.table).Where(ColumnGlobal + " IS NOT NULL").Count(&filled).Error; err != nil {
			return fmt.Errorf("failed to count work rows: %w", err)
		}
		if filled != int64(res.Updated) || filled != total {
			return fmt.Errorf("%w: %d work rows, %d recalculated, %d in table", ErrStale, filled, res.Updated, total)
		}

		out := tx.Table(r.table).
			Where(ColumnGlobal + " IS NOT NULL").
			Updates(map[string]any{
				"global_sequence":       gorm.Expr(ColumnGlobal),
				"group_number":          gorm.Expr(ColumnGroup),
				"batch_number":          gorm.Expr(ColumnBatch),
				"registry_batch_number": gorm.Expr(ColumnRegistryBatch),
			})
		if out.Error != nil {
			return fmt.Errorf("failed to apply recalculated numbers: %w", out.Error)
		}
		applied = out.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.log.Info("Applied recalculated numbers", zap.String("table", r.table), zap.Int64("rows", applied))
	return applied, nil
}
