package recalc

import (
	"context"
	"fmt"
	"slices"

	"fileno-manager/core/utils"

	"go.uber.org/zap"
)

// Row is one recomputed row.
type Row struct {
	ID                  int64  `json:"id"`
	Registry            string `json:"registry"`
	GlobalSequence      int    `json:"global_sequence"`
	GroupNumber         int    `json:"group_number"`
	BatchNumber         int    `json:"batch_number"`
	RegistryBatchNumber int    `json:"registry_batch_number"`
}

// Boundary holds the rows on both sides of a registry transition.
type Boundary struct {
	From string `json:"from"`
	To   string `json:"to"`
	Rows []Row  `json:"rows"`
}

// Range is the min and max of one column.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Verification is what an operator signs off before Apply.
type Verification struct {
	Samples       map[string][]Row `json:"samples"`
	Boundaries    []Boundary       `json:"boundaries"`
	Total         int              `json:"total"`
	Global        Range            `json:"global_sequence"`
	Group         Range            `json:"group_number"`
	Batch         Range            `json:"batch_number"`
	RegistryBatch Range            `json:"registry_batch_number"`
}

var workSelect = "id, registry, " +
	ColumnGlobal + ", " + ColumnGroup + ", " + ColumnBatch + ", " + ColumnRegistryBatch

func toRow(m map[string]any) Row {
	return Row{
		ID:                  int64(utils.ToInt(m["id"])),
		Registry:            utils.ToString(m["registry"]),
		GlobalSequence:      utils.ToInt(m[ColumnGlobal]),
		GroupNumber:         utils.ToInt(m[ColumnGroup]),
		BatchNumber:         utils.ToInt(m[ColumnBatch]),
		RegistryBatchNumber: utils.ToInt(m[ColumnRegistryBatch]),
	}
}

func (r *Recalculator) edge(ctx context.Context, registry string, n int, last bool) ([]Row, error) {
	order := "id"
	if last {
		order = "id DESC"
	}
	var raw []map[string]any
	err := r.db.WithContext(ctx).Table(r.table).
		Select(workSelect).
		Where("registry = ?", registry).
		Order(order).
		Limit(n).
		Find(&raw).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sample registry %s: %w", registry, err)
	}
	rows := make([]Row, len(raw))
	for i, m := range raw {
		rows[i] = toRow(m)
	}
	if last {
		slices.Reverse(rows)
	}
	return rows, nil
}

// Verify samples the first n rows of every registry, n rows on each side of
// every transition in plan order, and the range of every work column.
func (r *Recalculator) Verify(ctx context.Context, plan Plan, n int) (*Verification, error) {
	if n <= 0 {
		n = 5
	}
	v := &Verification{Samples: make(map[string][]Row, len(plan.Order))}

	// Step 1: First rows of each registry
	for _, reg := range plan.Order {
		rows, err := r.edge(ctx, reg, n, false)
		if err != nil {
			return nil, err
		}
		v.Samples[reg] = rows
	}

	// Step 2: Transitions between consecutive registries
	for i := 1; i < len(plan.Order); i++ {
		from, to := plan.Order[i-1], plan.Order[i]
		tail, err := r.edge(ctx, from, n, true)
		if err != nil {
			return nil, err
		}
		v.Boundaries = append(v.Boundaries, Boundary{From: from, To: to, Rows: append(tail, v.Samples[to]...)})
	}

	// Step 3: Column ranges
	var stats map[string]any
	err := r.db.WithContext(ctx).Table(r.table).
		Select("COUNT(*) AS total, " +
			"MIN(" + ColumnGlobal + ") AS min_global, MAX(" + ColumnGlobal + ") AS max_global, " +
			"MIN(" + ColumnGroup + ") AS min_group, MAX(" + ColumnGroup + ") AS max_group, " +
			"MIN(" + ColumnBatch + ") AS min_batch, MAX(" + ColumnBatch + ") AS max_batch, " +
			"MIN(" + ColumnRegistryBatch + ") AS min_registry_batch, MAX(" + ColumnRegistryBatch + ") AS max_registry_batch").
		Where(ColumnGlobal + " IS NOT NULL").
		Take(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read column ranges: %w", err)
	}
	v.Total = utils.ToInt(stats["total"])
	v.Global = Range{Min: utils.ToInt(stats["min_global"]), Max: utils.ToInt(stats["max_global"])}
	v.Group = Range{Min: utils.ToInt(stats["min_group"]), Max: utils.ToInt(stats["max_group"])}
	v.Batch = Range{Min: utils.ToInt(stats["min_batch"]), Max: utils.ToInt(stats["max_batch"])}
	v.RegistryBatch = Range{Min: utils.ToInt(stats["min_registry_batch"]), Max: utils.ToInt(stats["max_registry_batch"])}

	r.log.Info("Verification",
		zap.Int("total", v.Total),
		zap.Int("min_global", v.Global.Min),
		zap.Int("max_global", v.Global.Max),
		zap.Int("min_group", v.Group.Min),
		zap.Int("max_group", v.Group.Max),
		zap.Int("max_registry_batch", v.RegistryBatch.Max),
	)
	return v, nil
}
