package download

import "github.com/dustin/go-humanize"

// Stats are the raw counters a manager accumulates. Total always equals
// Successful + Failed + Skipped + Reused.
type Stats struct {
	Total      int   `json:"total_downloads"`
	Successful int   `json:"successful_downloads"`
	Failed     int   `json:"failed_downloads"`
	Skipped    int   `json:"skipped_downloads"`
	Reused     int   `json:"reused_downloads"`
	TotalBytes int64 `json:"total_bytes"`
}

// StatsSnapshot is the caller-facing view: raw counters plus derived rates
// and the size of the dedup database.
type StatsSnapshot struct {
	Stats

	SuccessRate         float64 `json:"success_rate"`
	FailureRate         float64 `json:"failure_rate"`
	SkipRate            float64 `json:"skip_rate"`
	ReuseRate           float64 `json:"reuse_rate"`
	UniqueContent       int     `json:"unique_content"`
	TotalBytesFormatted string  `json:"total_bytes_formatted"`
}

func snapshot(s Stats, uniqueContent int) StatsSnapshot {
	snap := StatsSnapshot{
		Stats:               s,
		UniqueContent:       uniqueContent,
		TotalBytesFormatted: humanize.Bytes(uint64(s.TotalBytes)),
	}

	if s.Total > 0 {
		snap.SuccessRate = float64(s.Successful) / float64(s.Total)
		snap.FailureRate = float64(s.Failed) / float64(s.Total)
		snap.SkipRate = float64(s.Skipped) / float64(s.Total)
		snap.ReuseRate = float64(s.Reused) / float64(s.Total)
	}

	return snap
}
