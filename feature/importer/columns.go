package importer

import (
	"fileno-manager/core/reconcile"
	"fileno-manager/core/source"
)

// Source columns of the allotment export.
const (
	ColumnReference  = "mlsfNo"
	ColumnLegacy     = "kangisFileNo"
	ColumnPlot       = "plotNo"
	ColumnSurveyPlan = "tpPlanNo"
	ColumnApplicant  = "currentAllottee"
	ColumnLayout     = "layoutName"
	ColumnDistrict   = "districtName"
	ColumnLGA        = "lgaName"
)

// RequiredColumns must all be present in the source header.
var RequiredColumns = []string{
	ColumnReference,
	ColumnLegacy,
	ColumnPlot,
	ColumnSurveyPlan,
	ColumnApplicant,
	ColumnLayout,
	ColumnDistrict,
	ColumnLGA,
}

// ParseRow maps a source row onto an external record.
func ParseRow(row source.Row) reconcile.ExternalRecord {
	return reconcile.ExternalRecord{
		RowIndex:        row.Index,
		Reference:       row.Get(ColumnReference),
		LegacyReference: row.Get(ColumnLegacy),
		Applicant:       row.Get(ColumnApplicant),
		PlotNumber:      row.Get(ColumnPlot),
		SurveyPlan:      row.Get(ColumnSurveyPlan),
		Layout:          row.Get(ColumnLayout),
		District:        row.Get(ColumnDistrict),
		LGA:             row.Get(ColumnLGA),
	}
}
