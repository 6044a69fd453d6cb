package importer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"fileno-manager/core/progress"
	"fileno-manager/core/reconcile"
	"fileno-manager/core/source"
	"fileno-manager/core/storage/mocks"
	"fileno-manager/feature/filenumber"
	"fileno-manager/feature/grouping"
	"fileno-manager/feature/grouping/models"
	"fileno-manager/feature/numbering"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const header = "mlsfNo,kangisFileNo,plotNo,tpPlanNo,currentAllottee,layoutName,districtName,lgaName\n"

func setupTestDB(t *testing.T) (*gorm.DB, *grouping.Store, *filenumber.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", regexp.MustCompile(`\W`).ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	groupings := grouping.NewStore(db, "", nil)
	results := filenumber.NewStore(db, "", filenumber.DefaultProvenance(), nil)
	ctx := context.Background()
	require.NoError(t, groupings.Migrate(ctx))
	require.NoError(t, results.Migrate(ctx))

	layout := numbering.DefaultLayout()
	layout.NumbersPerYear = 5
	layout.Registries = []numbering.RegistryDefinition{
		{ID: "1", Categories: []string{"RES", "COM"}, StartYear: 1990, EndYear: 1990},
	}
	gen := numbering.NewGenerator(layout, nil, nil, nil)
	_, err = grouping.NewSeeder(groupings, gen, nil, nil).Seed(ctx, nil, grouping.SeedOptions{}, nil)
	require.NoError(t, err)

	return db, groupings, results
}

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "allotments.csv")
	require.NoError(t, os.WriteFile(p, []byte(header+strings.Join(lines, "\n")+"\n"), 0o644))
	return p
}

func newService(t *testing.T, cfg Config, opts ...Option) (*Service, *grouping.Store, *filenumber.Store) {
	db, groupings, results := setupTestDB(t)
	return NewService(db, groupings, results, cfg, nil, nil, opts...), groupings, results
}

func TestImport_ReconcilesAcrossBatches(t *testing.T) {
	svc, groupings, results := newService(t, Config{ReadBatch: 2})
	path := writeCSV(t,
		"RES-1990-1,K1,12,TP1,Musa Ali,Layout A,Dala,Kano",
		"COM-1990-2 AND EXTENSION,K2,13,TP2,Ada Obi,,Fagge,Kano",
		"res-1990-1 (temp),K1,12,TP1,Musa Ali,Layout A,Dala,Kano",
		",K3,14,TP3,Nobody,,,",
		"AG-2001-9,K4,15,TP4,Sani Bello,Layout B,,Gwale",
	)

	ctx := context.Background()
	run := reconcile.NewRun("TEST-1")
	report, err := svc.Import(ctx, run, ImportOptions{Source: path})
	require.NoError(t, err)

	assert.Equal(t, reconcile.StatusSucceeded, report.Status)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, "utf-8", report.Encoding)
	assert.Equal(t, "TEST-1", report.Tag)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 3, report.Matched)
	assert.Equal(t, 1, report.Unmatched)
	// The repeated key lands in a different batch, so it is inserted again
	// but maps its identifier only once.
	assert.Equal(t, 4, report.Inserted)
	assert.Equal(t, 2, report.MappingsFlushed)

	tag := "TEST-1"
	mapped, err := groupings.CountMapped(ctx, &tag)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mapped)

	tracked, err := results.CountTaggedWithTracking(ctx, &tag)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tracked)

	v, err := svc.Validate(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.Results)
	assert.Equal(t, int64(2), v.MappedIdentifiers)
	require.NotEmpty(t, v.Samples)
	assert.Equal(t, "RES-1990-1", v.Samples[0].Identifier)
	assert.True(t, v.Samples[0].Consistent)

	cleaned, err := svc.Cleanup(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cleaned.DeletedRows)
	assert.Equal(t, int64(2), cleaned.ResetMappings)

	left, err := results.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestImport_ProgressNeverGoesBackAcrossBatches(t *testing.T) {
	svc, _, _ := newService(t, Config{ReadBatch: 2, LookupChunkSize: 1, InsertBatchSize: 1})
	path := writeCSV(t,
		"RES-1990-1,K1,12,TP1,Musa Ali,Layout A,Dala,Kano",
		"RES-1990-2,K2,13,TP2,Ada Obi,,Fagge,Kano",
		"COM-1990-1,K3,14,TP3,Sani Bello,,,Kano",
		"COM-1990-2,K4,15,TP4,Hauwa Umar,,,Kano",
		"AG-2001-9,K5,16,TP5,Bala Yusuf,Layout B,,Gwale",
	)

	var events []progress.Event
	sink := progress.SinkFunc(func(e progress.Event) error {
		events = append(events, e)
		return nil
	})
	run := reconcile.NewRun("TEST-1", reconcile.WithReporter(progress.NewReporter("import", sink, nil)))
	report, err := svc.Import(context.Background(), run, ImportOptions{Source: path})
	require.NoError(t, err)
	require.Equal(t, 3, report.Batches)

	prev := 0.0
	prepared := 0
	for _, e := range events {
		if e.Phase == progress.PhasePrepare {
			prepared++
		}
		if e.Percent == nil {
			continue
		}
		assert.GreaterOrEqual(t, *e.Percent, prev, "%s: %s", e.Phase, e.Message)
		prev = *e.Percent
	}
	assert.InDelta(t, 100.0, prev, 0.001)
	assert.GreaterOrEqual(t, prepared, 3)
}

func TestImport_SameTagTwiceLeavesIdentifiersUnchanged(t *testing.T) {
	db, groupings, results := setupTestDB(t)
	svc := NewService(db, groupings, results, Config{ReadBatch: 2}, nil, nil)
	path := writeCSV(t,
		"RES-1990-1,K1,12,TP1,Musa Ali,Layout A,Dala,Kano",
		"COM-1990-2 AND EXTENSION,K2,13,TP2,Ada Obi,,Fagge,Kano",
		"res-1990-1 (temp),K1,12,TP1,Musa Ali,Layout A,Dala,Kano",
		"AG-2001-9,K4,15,TP4,Sani Bello,Layout B,,Gwale",
	)
	ctx := context.Background()

	identifiers := func() []models.Grouping {
		var rows []models.Grouping
		require.NoError(t, db.Select("tracking_id", "mapping_flag", "matched_reference", "control_tag").
			Order("tracking_id").Find(&rows).Error)
		return rows
	}

	_, err := svc.Import(ctx, reconcile.NewRun("TEST-1"), ImportOptions{Source: path})
	require.NoError(t, err)
	first := identifiers()

	report, err := svc.Import(ctx, reconcile.NewRun("TEST-1"), ImportOptions{Source: path})
	require.NoError(t, err)
	assert.Equal(t, 2, report.MappingsFlushed)

	second := identifiers()
	assert.Equal(t, first, second)

	tag := "TEST-1"
	mapped, err := groupings.CountMapped(ctx, &tag)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mapped)
}

func TestImport_MissingColumnsWritesNothing(t *testing.T) {
	svc, _, results := newService(t, Config{})
	p := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(p, []byte("mlsfNo,plotNo\nRES-1990-1,1\n"), 0o644))

	_, err := svc.Import(context.Background(), reconcile.NewRun(""), ImportOptions{Source: p})
	require.ErrorIs(t, err, source.ErrMissingColumns)

	n, err := results.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImport_DryRunAndLimit(t *testing.T) {
	svc, groupings, results := newService(t, Config{})
	path := writeCSV(t,
		"RES-1990-1,K1,12,TP1,Musa Ali,Layout A,Dala,Kano",
		"RES-1990-2,K2,13,TP2,Ada Obi,Layout A,Dala,Kano",
		"RES-1990-3,K3,14,TP3,Sani Bello,Layout A,Dala,Kano",
	)

	ctx := context.Background()
	report, err := svc.Import(ctx, reconcile.NewRun("DRY"), ImportOptions{Source: path, Limit: 2, DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Matched)
	assert.Zero(t, report.Inserted)

	n, err := results.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	tag := "DRY"
	mapped, err := groupings.CountMapped(ctx, &tag)
	require.NoError(t, err)
	assert.Zero(t, mapped)
}

func TestImport_CancelledBeforeStart(t *testing.T) {
	svc, _, results := newService(t, Config{})
	path := writeCSV(t, "RES-1990-1,K1,12,TP1,Musa Ali,Layout A,Dala,Kano")

	run := reconcile.NewRun("C")
	run.Cancel()
	report, err := svc.Import(context.Background(), run, ImportOptions{Source: path})
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCancelled, report.Status)

	n, err := results.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImport_ArchivesReport(t *testing.T) {
	client := new(mocks.Client)
	svc, _, _ := newService(t, Config{}, WithArchive(client, "reports", "runs"))
	path := writeCSV(t, "RES-1990-1,K1,12,TP1,Musa Ali,Layout A,Dala,Kano")

	run := reconcile.NewRun("", reconcile.WithRunID("run-1"))
	client.On("BucketExists", mock.Anything, "reports").Return(true, nil)
	client.On("PutObject", mock.Anything, "reports", "runs/import/run-1.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)

	report, err := svc.Import(context.Background(), run, ImportOptions{Source: path})
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/runs/import/run-1.json", report.Archive)
	client.AssertExpectations(t)
}

func TestImport_ObjectSourceNeedsStorage(t *testing.T) {
	svc, _, _ := newService(t, Config{})
	_, err := svc.Import(context.Background(), reconcile.NewRun(""), ImportOptions{Source: "s3://bucket/file.csv"})
	assert.ErrorContains(t, err, "object storage is not configured")
}

func TestImport_ObjectSource(t *testing.T) {
	client := new(mocks.Client)
	svc, _, _ := newService(t, Config{}, WithSourceStorage(client))
	data := header + "RES-1990-4,K1,12,TP1,Musa Ali,Layout A,Dala,Kano\n"
	client.On("GetObject", mock.Anything, "imports", "2025/allotments.csv", mock.Anything).
		Return(readCloser{bytes.NewReader([]byte(data))}, nil)

	report, err := svc.Import(context.Background(), reconcile.NewRun(""), ImportOptions{Source: "s3://imports/2025/allotments.csv"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Inserted)
}

type readCloser struct{ *bytes.Reader }

func (readCloser) Close() error { return nil }

func TestParseRow(t *testing.T) {
	r, err := source.Parse("x.csv", []byte(header+" RES-1990-1 ,K1,12,TP1,Musa Ali,Layout A,Dala,Kano\n"), source.Options{})
	require.NoError(t, err)
	row, err := r.Next()
	require.NoError(t, err)

	rec := ParseRow(row)
	assert.Equal(t, "RES-1990-1", rec.Reference)
	assert.Equal(t, "Layout A, Kano, Dala", rec.Location())
	assert.Equal(t, 1, rec.RowIndex)
}

func TestCleanup_RequiresTag(t *testing.T) {
	svc, _, _ := newService(t, Config{})
	_, err := svc.Cleanup(context.Background(), "")
	assert.Error(t, err)
}
