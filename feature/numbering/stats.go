package numbering

// Stats summarizes a set of generated records.
type Stats struct {
	Total      int            `json:"total_records"`
	Categories map[string]int `json:"categories"`
	Registries map[string]int `json:"registries"`
	LandUses   map[string]int `json:"land_uses"`
	MinYear    int            `json:"min_year"`
	MaxYear    int            `json:"max_year"`
	MinGroup   int            `json:"min_group"`
	MaxGroup   int            `json:"max_group"`
}

// NewStats returns empty stats.
func NewStats() *Stats {
	return &Stats{
		Categories: make(map[string]int),
		Registries: make(map[string]int),
		LandUses:   make(map[string]int),
	}
}

// Add counts one record.
func (s *Stats) Add(r Record) {
	if s.Total == 0 {
		s.MinYear, s.MaxYear = r.Year, r.Year
		s.MinGroup, s.MaxGroup = r.GroupNumber, r.GroupNumber
	}
	s.Total++
	s.Categories[r.Category]++
	s.Registries[r.Registry]++
	s.LandUses[r.LandUse]++
	s.MinYear = min(s.MinYear, r.Year)
	s.MaxYear = max(s.MaxYear, r.Year)
	s.MinGroup = min(s.MinGroup, r.GroupNumber)
	s.MaxGroup = max(s.MaxGroup, r.GroupNumber)
}

// GroupCount is the number of groups spanned.
func (s *Stats) GroupCount() int {
	if s.Total == 0 {
		return 0
	}
	return s.MaxGroup - s.MinGroup + 1
}
