package usage

// Data is the root structure stored in usage.json.
type Data struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds counters broken down by various dimensions.
type AggregatedStats struct {
	Total      TokenCounts            `json:"total"`
	Calls      int64                  `json:"calls"`
	ByProvider map[string]TokenCounts `json:"by_provider"`
	ByModel    map[string]TokenCounts `json:"by_model"`
	ByTier     map[string]TokenCounts `json:"by_tier"`
	ByDay      map[string]TokenCounts `json:"by_day"` // 2006-01-02, UTC
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Add accumulates one call.
func (tc *TokenCounts) Add(input, output int) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}

func (s *AggregatedStats) ensureMaps() {
	if s.ByProvider == nil {
		s.ByProvider = make(map[string]TokenCounts)
	}
	if s.ByModel == nil {
		s.ByModel = make(map[string]TokenCounts)
	}
	if s.ByTier == nil {
		s.ByTier = make(map[string]TokenCounts)
	}
	if s.ByDay == nil {
		s.ByDay = make(map[string]TokenCounts)
	}
}
