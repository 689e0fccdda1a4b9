package models

import "time"

// -----------------------------------------------------------------------------
// Cache Snapshot
// -----------------------------------------------------------------------------

// MSnapshot is the hub's single shared value. It is published once and never
// mutated afterwards; a refresh replaces the whole value. Fallback marks
// synthetic placeholder data served when the source has never answered.
type MSnapshot struct {
	Charts    []MChartRecord
	FetchedAt time.Time
	Fallback  bool
}

// Len is nil-safe.
func (s *MSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Charts)
}

// Records is nil-safe.
func (s *MSnapshot) Records() []MChartRecord {
	if s == nil {
		return nil
	}
	return s.Charts
}

// -----------------------------------------------------------------------------

// DataSource tags where a delivered snapshot came from.
type DataSource string

const (
	SourceCache DataSource = "cache"
	SourceFresh DataSource = "fresh"
)

// -----------------------------------------------------------------------------

// Cache status values reported in pong replies.
const (
	CacheStatusLoaded = "loaded"
	CacheStatusEmpty  = "empty"
)
