package resolver

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Stats is the run-scoped view of enrichment activity collected by an
// Observer.
type Stats struct {
	TotalLookups     int
	CacheHits        int
	TempIDsGenerated int
	APICalls         int
	SyncBudgetUsed   int
	AsyncQueued      int
	QueueDepthAfter  int64
	HitTypeCounts    map[string]int
}

// CacheHitRate is CacheHits over TotalLookups, 0 when nothing was looked up.
func (s Stats) CacheHitRate() float64 {
	if s.TotalLookups == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalLookups)
}

// TempIDRate is TempIDsGenerated over TotalLookups, 0 when nothing was
// looked up.
func (s Stats) TempIDRate() float64 {
	if s.TotalLookups == 0 {
		return 0
	}
	return float64(s.TempIDsGenerated) / float64(s.TotalLookups)
}

// Merge combines two runs' stats. Counters add; QueueDepthAfter takes the
// other run's value since it is a point-in-time reading.
func (s Stats) Merge(other Stats) Stats {
	merged := Stats{
		TotalLookups:     s.TotalLookups + other.TotalLookups,
		CacheHits:        s.CacheHits + other.CacheHits,
		TempIDsGenerated: s.TempIDsGenerated + other.TempIDsGenerated,
		APICalls:         s.APICalls + other.APICalls,
		SyncBudgetUsed:   s.SyncBudgetUsed + other.SyncBudgetUsed,
		AsyncQueued:      s.AsyncQueued + other.AsyncQueued,
		QueueDepthAfter:  other.QueueDepthAfter,
		HitTypeCounts:    make(map[string]int, len(s.HitTypeCounts)+len(other.HitTypeCounts)),
	}
	for k, v := range s.HitTypeCounts {
		merged.HitTypeCounts[k] += v
	}
	for k, v := range other.HitTypeCounts {
		merged.HitTypeCounts[k] += v
	}
	return merged
}

// UnknownCompany tracks a name that only ever received a temporary id. The
// first-seen timestamp and the originally assigned id are kept; repeats only
// bump the occurrence count.
type UnknownCompany struct {
	CompanyName     string
	TemporaryID     string
	FirstSeen       time.Time
	OccurrenceCount int
}

// unknownCompanyHeaders are the CSV export column names.
var unknownCompanyHeaders = []string{"company_name", "temporary_id", "first_seen", "occurrence_count"}

// Observer aggregates enrichment metrics for a single run. All methods are
// safe for concurrent use.
type Observer struct {
	mu       sync.Mutex
	stats    Stats
	unknowns map[string]*UnknownCompany
}

// NewObserver creates an empty Observer.
func NewObserver() *Observer {
	return &Observer{
		stats:    Stats{HitTypeCounts: map[string]int{}},
		unknowns: map[string]*UnknownCompany{},
	}
}

// RecordLookup counts one resolution attempt.
func (o *Observer) RecordLookup() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.TotalLookups++
}

// RecordCacheHit counts a successful internal mapping hit by match type.
func (o *Observer) RecordCacheHit(matchType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.CacheHits++
	o.stats.HitTypeCounts[matchType]++
}

// RecordTempID counts a generated temporary id and tracks the raw name for
// the unknown-company export.
func (o *Observer) RecordTempID(companyName, tempID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.TempIDsGenerated++

	if existing, ok := o.unknowns[companyName]; ok {
		existing.OccurrenceCount++
		return
	}
	o.unknowns[companyName] = &UnknownCompany{
		CompanyName:     companyName,
		TemporaryID:     tempID,
		FirstSeen:       time.Now().UTC(),
		OccurrenceCount: 1,
	}
}

// RecordAPICall counts one external lookup call and the budget it consumed.
func (o *Observer) RecordAPICall() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.APICalls++
	o.stats.SyncBudgetUsed++
}

// RecordAsyncQueued counts one request handed to the async queue.
func (o *Observer) RecordAsyncQueued() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.AsyncQueued++
}

// SetQueueDepth records the queue depth after the run.
func (o *Observer) SetQueueDepth(depth int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.QueueDepthAfter = depth
}

// GetStats returns a copy of the current statistics.
func (o *Observer) GetStats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := o.stats
	out.HitTypeCounts = make(map[string]int, len(o.stats.HitTypeCounts))
	for k, v := range o.stats.HitTypeCounts {
		out.HitTypeCounts[k] = v
	}
	return out
}

// UnknownCompanies returns the tracked unknown companies sorted by
// occurrence count descending.
func (o *Observer) UnknownCompanies() []UnknownCompany {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]UnknownCompany, 0, len(o.unknowns))
	for _, u := range o.unknowns {
		out = append(out, *u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurrenceCount > out[j].OccurrenceCount
	})
	return out
}

// HasUnknownCompanies reports whether any unknown company was recorded.
func (o *Observer) HasUnknownCompanies() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.unknowns) > 0
}

// UnknownCompanyRows returns the export data as CSV-shaped rows, headers
// first, sorted by occurrence count descending.
func (o *Observer) UnknownCompanyRows() [][]string {
	companies := o.UnknownCompanies()
	rows := make([][]string, 0, len(companies)+1)
	rows = append(rows, unknownCompanyHeaders)
	for _, c := range companies {
		rows = append(rows, []string{
			c.CompanyName,
			c.TemporaryID,
			c.FirstSeen.Format(time.RFC3339),
			strconv.Itoa(c.OccurrenceCount),
		})
	}
	return rows
}

// Reset clears all state for a new run.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats = Stats{HitTypeCounts: map[string]int{}}
	o.unknowns = map[string]*UnknownCompany{}
}
