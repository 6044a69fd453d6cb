package numbering

import (
	"fmt"
	"iter"
	"slices"

	"fileno-manager/core/metrics"
	"fileno-manager/feature/tracking"

	"go.uber.org/zap"
)

// Record is one generated identifier.
type Record struct {
	FileReference       string
	Category            string
	Year                int
	Serial              int
	LandUse             string
	Registry            string
	GlobalSequence      int
	RegistrySequence    int
	GroupNumber         int
	BatchNumber         int
	RegistryBatchNumber int
	TrackingID          string
}

// State holds the counters of a generation run. Pass the same State to
// consecutive Generate calls with Continue set to keep numbering contiguous.
type State struct {
	Global      int
	PerRegistry map[string]int
}

// NewState returns zeroed counters.
func NewState() *State {
	return &State{PerRegistry: make(map[string]int)}
}

func (s *State) reset() {
	s.Global = 0
	s.PerRegistry = make(map[string]int)
}

// Options narrows a generation run.
type Options struct {
	// Categories restricts generation to these categories. Empty means all.
	Categories []string
	// MaxPerCategory caps records per category within a registry block. Zero means no cap.
	MaxPerCategory int
	// Continue resumes from the counters in State instead of resetting them.
	Continue bool
}

// Generator produces identifier records for a layout.
type Generator struct {
	layout  Layout
	alloc   *tracking.Allocator
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewGenerator creates a generator. alloc, log and m may be nil.
func NewGenerator(layout Layout, alloc *tracking.Allocator, log *zap.Logger, m *metrics.Metrics) *Generator {
	if alloc == nil {
		alloc = tracking.NewAllocator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{layout: layout, alloc: alloc, log: log, metrics: m}
}

// Layout returns the layout in use.
func (g *Generator) Layout() Layout { return g.layout }

// Generate yields records registry by registry, then category, then year
// ascending, then serial ascending. The sequence stops at the first error
// (invalid layout or tracking id exhaustion) after yielding it.
func (g *Generator) Generate(state *State, opts Options) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if err := g.layout.Validate(); err != nil {
			yield(Record{}, err)
			return
		}
		if !opts.Continue || state.PerRegistry == nil {
			state.reset()
		}
		size := g.layout.GroupSize

		for _, reg := range g.layout.Registries {
			if reg.StartYear > reg.EndYear {
				g.log.Warn("Skipping registry with inverted year range",
					zap.String("registry", reg.ID),
					zap.Int("start_year", reg.StartYear),
					zap.Int("end_year", reg.EndYear),
				)
				continue
			}

			for _, category := range reg.Categories {
				if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, category) {
					continue
				}
				produced := 0

			years:
				for year := reg.StartYear; year <= reg.EndYear; year++ {
					for serial := 1; serial <= g.layout.NumbersPerYear; serial++ {
						if opts.MaxPerCategory > 0 && produced >= opts.MaxPerCategory {
							break years
						}

						id, err := g.alloc.New()
						if err != nil {
							yield(Record{}, fmt.Errorf("failed to allocate tracking id: %w", err))
							return
						}

						registry := g.layout.AssignRegistry(category, year)
						state.Global++
						state.PerRegistry[registry]++
						local := state.PerRegistry[registry]
						group := ((state.Global - 1) / size) + 1

						rec := Record{
							FileReference:       fmt.Sprintf("%s-%d-%d", category, year, serial),
							Category:            category,
							Year:                year,
							Serial:              serial,
							LandUse:             LandUse(category),
							Registry:            registry,
							GlobalSequence:      state.Global,
							RegistrySequence:    local,
							GroupNumber:         group,
							BatchNumber:         group,
							RegistryBatchNumber: ((local - 1) / size) + 1,
							TrackingID:          id,
						}
						produced++
						g.metrics.IncGenerated(registry)

						if !yield(rec, nil) {
							return
						}
					}
				}

				g.log.Debug("Generated category",
					zap.String("registry", reg.ID),
					zap.String("category", category),
					zap.Int("records", produced),
				)
			}
		}
	}
}

// Total predicts how many records Generate will yield for opts.
func (g *Generator) Total(opts Options) int {
	total := 0
	for _, reg := range g.layout.Registries {
		if reg.StartYear > reg.EndYear {
			continue
		}
		perCategory := (reg.EndYear - reg.StartYear + 1) * g.layout.NumbersPerYear
		if opts.MaxPerCategory > 0 {
			perCategory = min(perCategory, opts.MaxPerCategory)
		}
		for _, category := range reg.Categories {
			if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, category) {
				continue
			}
			total += perCategory
		}
	}
	return total
}
