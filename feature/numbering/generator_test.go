package numbering

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"fileno-manager/feature/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func smallLayout() Layout {
	l := DefaultLayout()
	l.NumbersPerYear = 3
	l.GroupSize = 5
	l.Registries = []RegistryDefinition{
		{ID: "1", Categories: []string{"RES", "COM"}, StartYear: 1990, EndYear: 1993},
		{ID: "3", Categories: []string{"CON-RES"}, StartYear: 1990, EndYear: 1991},
	}
	return l
}

func collect(t *testing.T, g *Generator, state *State, opts Options) []Record {
	t.Helper()
	var out []Record
	for rec, err := range g.Generate(state, opts) {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestGenerate_OrderAndReferences(t *testing.T) {
	g := NewGenerator(smallLayout(), nil, nil, nil)
	records := collect(t, g, NewState(), Options{})

	// RES 4 years x 3 + COM 4 x 3 + CON-RES 2 x 3
	require.Len(t, records, 30)
	assert.Equal(t, "RES-1990-1", records[0].FileReference)
	assert.Equal(t, "RES-1990-3", records[2].FileReference)
	assert.Equal(t, "RES-1991-1", records[3].FileReference)
	assert.Equal(t, "COM-1990-1", records[12].FileReference)
	assert.Equal(t, "CON-RES-1990-1", records[24].FileReference)
	assert.Equal(t, g.Total(Options{}), len(records))
}

func TestGenerate_GlobalSequenceIsContiguous(t *testing.T) {
	g := NewGenerator(smallLayout(), nil, nil, nil)

	for _, opts := range []Options{{}, {MaxPerCategory: 4}, {Categories: []string{"COM", "CON-RES"}}} {
		records := collect(t, g, NewState(), opts)
		for i, r := range records {
			assert.Equal(t, i+1, r.GlobalSequence)
			assert.Equal(t, r.GroupNumber, r.BatchNumber)
			assert.Equal(t, (i/5)+1, r.GroupNumber)
		}
	}
}

func TestGenerate_RegistryBatchRestartsPerRegistry(t *testing.T) {
	g := NewGenerator(smallLayout(), nil, nil, nil)
	records := collect(t, g, NewState(), Options{})

	local := map[string]int{}
	for _, r := range records {
		local[r.Registry]++
		assert.Equal(t, local[r.Registry], r.RegistrySequence)
		assert.Equal(t, ((local[r.Registry]-1)/5)+1, r.RegistryBatchNumber)
	}

	// RES/COM 1990-1991 -> "1", 1992-1993 -> "2", CON-RES -> "3"
	assert.Equal(t, map[string]int{"1": 12, "2": 12, "3": 6}, local)

	first3 := records[24]
	assert.Equal(t, "3", first3.Registry)
	assert.Equal(t, 1, first3.RegistryBatchNumber)
	assert.Equal(t, 25, first3.GlobalSequence)
	assert.Equal(t, 5, first3.GroupNumber)
}

func TestAssignRegistry_ConversionAlwaysWins(t *testing.T) {
	layout := DefaultLayout()
	rng := rand.New(rand.NewPCG(3, 4))
	prefixes := []string{"", "X-", "RES-", "AG-RC-"}
	suffixes := []string{"", "-RES", "-COM-RC", "X"}

	for i := 0; i < 2000; i++ {
		category := prefixes[rng.IntN(len(prefixes))] + "CON" + suffixes[rng.IntN(len(suffixes))]
		year := 1900 + rng.IntN(250)
		assert.Equal(t, "3", layout.AssignRegistry(category, year), "%s %d", category, year)
	}
}

func TestAssignRegistry_Windows(t *testing.T) {
	layout := DefaultLayout()
	assert.Equal(t, "1", layout.AssignRegistry("RES", 1981))
	assert.Equal(t, "1", layout.AssignRegistry("COM-RC", 1991))
	assert.Equal(t, "2", layout.AssignRegistry("AG", 1992))
	assert.Equal(t, "2", layout.AssignRegistry("AG", 2025))
	assert.Equal(t, "2", layout.AssignRegistry("RES", 1970), "outside every window")
	assert.Equal(t, "2", layout.AssignRegistry("RES", 2031))

	layout.DefaultRegistry = "9"
	assert.Equal(t, "9", layout.AssignRegistry("RES", 2031))
}

func TestLandUse(t *testing.T) {
	tests := map[string]string{
		"RES":        "Residential",
		"CON-RES-RC": "Residential",
		"COM-RC":     "Commercial",
		"IND":        "Industrial",
		"AG":         "Agriculture",
		"CON-AG":     "Agriculture",
		"XYZ":        "Unknown",
		// RES outranks COM
		"RES-COM": "Residential",
	}
	for in, want := range tests {
		assert.Equal(t, want, LandUse(in), in)
	}
}

func TestGenerate_CapStopsCategoryMidYear(t *testing.T) {
	g := NewGenerator(smallLayout(), nil, nil, nil)
	records := collect(t, g, NewState(), Options{MaxPerCategory: 4})

	require.Len(t, records, 12)
	assert.Equal(t, "RES-1991-1", records[3].FileReference)
	assert.Equal(t, "COM-1990-1", records[4].FileReference)
	assert.Equal(t, 12, g.Total(Options{MaxPerCategory: 4}))
}

func TestGenerate_SkipsInvertedRange(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	layout := smallLayout()
	layout.Registries[0].StartYear = 2000
	layout.Registries[0].EndYear = 1990

	g := NewGenerator(layout, nil, zap.New(core), nil)
	records := collect(t, g, NewState(), Options{})

	assert.Len(t, records, 6)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Skipping registry with inverted year range", logs.All()[0].Message)
	assert.Equal(t, 6, g.Total(Options{}))
}

func TestGenerate_ContinueKeepsCounters(t *testing.T) {
	g := NewGenerator(smallLayout(), nil, nil, nil)
	state := NewState()

	first := collect(t, g, state, Options{Categories: []string{"RES"}})
	second := collect(t, g, state, Options{Categories: []string{"COM"}, Continue: true})

	assert.Equal(t, 12, first[len(first)-1].GlobalSequence)
	assert.Equal(t, 13, second[0].GlobalSequence)
	assert.Equal(t, 7, second[0].RegistrySequence)

	fresh := collect(t, g, state, Options{Categories: []string{"COM"}})
	assert.Equal(t, 1, fresh[0].GlobalSequence)
}

func TestGenerate_TrackingIDs(t *testing.T) {
	g := NewGenerator(smallLayout(), tracking.NewAllocator(tracking.WithGuarantee(tracking.GuaranteeRun)), nil, nil)
	seen := map[string]bool{}
	for _, r := range collect(t, g, NewState(), Options{}) {
		assert.True(t, tracking.Valid(r.TrackingID))
		assert.False(t, seen[r.TrackingID])
		seen[r.TrackingID] = true
	}
}

func TestGenerate_RejectsInvalidLayout(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Layout)
	}{
		{name: "zero group size", modify: func(l *Layout) { l.GroupSize = 0 }},
		{name: "zero numbers per year", modify: func(l *Layout) { l.NumbersPerYear = 0 }},
		{name: "no registries", modify: func(l *Layout) { l.Registries = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := smallLayout()
			tt.modify(&layout)
			g := NewGenerator(layout, nil, nil, nil)

			var errs []error
			n := 0
			for _, err := range g.Generate(NewState(), Options{}) {
				n++
				errs = append(errs, err)
			}
			require.Equal(t, 1, n)
			assert.ErrorIs(t, errs[0], ErrInvalidLayout)
		})
	}
}

func TestGenerate_EarlyStop(t *testing.T) {
	g := NewGenerator(DefaultLayout(), nil, nil, nil)
	n := 0
	for _, err := range g.Generate(NewState(), Options{}) {
		require.NoError(t, err)
		n++
		if n == 10 {
			break
		}
	}
	assert.Equal(t, 10, n)
}

func TestStats(t *testing.T) {
	g := NewGenerator(smallLayout(), nil, nil, nil)
	stats := NewStats()
	for _, r := range collect(t, g, NewState(), Options{}) {
		stats.Add(r)
	}

	assert.Equal(t, 30, stats.Total)
	assert.Equal(t, 12, stats.Categories["RES"])
	assert.Equal(t, 18, stats.LandUses["Residential"])
	assert.Equal(t, 1990, stats.MinYear)
	assert.Equal(t, 1993, stats.MaxYear)
	assert.Equal(t, 6, stats.GroupCount())
}

func TestLoadLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	content := `
numbers_per_year: 50
registries:
  - id: "1"
    categories: [RES, COM]
    start_year: 1981
    end_year: 1985
windows:
  - registry: "1"
    start: 1981
    end: 1985
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	layout, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, 50, layout.NumbersPerYear)
	assert.Equal(t, 100, layout.GroupSize, "defaults survive")
	assert.Equal(t, "CON", layout.ConversionMarker)
	require.Len(t, layout.Registries, 1)
	assert.Equal(t, []string{"RES", "COM"}, layout.Registries[0].Categories)

	require.NoError(t, os.WriteFile(path, []byte("group_size: 0\n"), 0o644))
	_, err = LoadLayout(path)
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("1=1981-1991")
	require.NoError(t, err)
	assert.Equal(t, YearWindow{Registry: "1", Start: 1981, End: 1991}, w)

	for _, bad := range []string{"1981-1991", "1=1981", "=1981-1991", "1=abc-1991", "1=1981-x"} {
		_, err := ParseWindow(bad)
		assert.Error(t, err, bad)
	}

	layout := DefaultLayout()
	layout.SetWindow(YearWindow{Registry: "1", Start: 1981, End: 1995})
	assert.Equal(t, "1", layout.AssignRegistry("RES", 1994))
	layout.SetWindow(YearWindow{Registry: "4", Start: 2026, End: 2030})
	assert.Equal(t, "4", layout.AssignRegistry("RES", 2027))
}
