package collector

import (
	"fmt"
	"time"
)

// Report counts what a collection run asked for and what it got.
type Report struct {
	Platform string
	Started  time.Time
	Finished time.Time

	PlayersRequested int
	PlayersSucceeded int
	PlayersFailed    int

	MatchIDs       int // unique IDs after deduplication
	MatchesSkipped int // already fetched by an earlier run
	MatchesFailed  int
	MatchesFetched int
	RecordsParsed  int
}

// MatchesRequested is the number of match details the run tried to fetch.
func (r Report) MatchesRequested() int {
	return r.MatchIDs - r.MatchesSkipped
}

// ZeroSuccess reports whether the run asked for matches and got none.
func (r Report) ZeroSuccess() bool {
	return r.MatchesFetched == 0 && r.MatchesRequested() > 0 ||
		r.PlayersRequested > 0 && r.PlayersSucceeded == 0
}

func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return time.Since(r.Started)
	}
	return r.Finished.Sub(r.Started)
}

func (r Report) String() string {
	return fmt.Sprintf("players %d/%d, matches %d/%d (%d already seen), records %d in %s",
		r.PlayersSucceeded, r.PlayersRequested,
		r.MatchesFetched, r.MatchesRequested(), r.MatchesSkipped,
		r.RecordsParsed, formatDuration(r.Duration()))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%02dm%02ds", hours, mins, secs)
}
