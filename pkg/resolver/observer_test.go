package resolver

import (
	"sync"
	"testing"
)

func TestObserver_Counters(t *testing.T) {
	o := NewObserver()

	o.RecordLookup()
	o.RecordLookup()
	o.RecordCacheHit("plan_code")
	o.RecordCacheHit("customer_name")
	o.RecordCacheHit("customer_name")
	o.RecordAPICall()
	o.RecordAsyncQueued()
	o.SetQueueDepth(7)

	stats := o.GetStats()
	if stats.TotalLookups != 2 {
		t.Errorf("TotalLookups = %d, want 2", stats.TotalLookups)
	}
	if stats.CacheHits != 3 {
		t.Errorf("CacheHits = %d, want 3", stats.CacheHits)
	}
	if stats.HitTypeCounts["customer_name"] != 2 {
		t.Errorf("HitTypeCounts[customer_name] = %d, want 2", stats.HitTypeCounts["customer_name"])
	}
	if stats.APICalls != 1 || stats.SyncBudgetUsed != 1 {
		t.Errorf("APICalls = %d, SyncBudgetUsed = %d, want 1 and 1", stats.APICalls, stats.SyncBudgetUsed)
	}
	if stats.QueueDepthAfter != 7 {
		t.Errorf("QueueDepthAfter = %d, want 7", stats.QueueDepthAfter)
	}
}

func TestObserver_Rates(t *testing.T) {
	o := NewObserver()

	// Zero lookups: rates are 0, not NaN.
	if got := o.GetStats().CacheHitRate(); got != 0 {
		t.Errorf("CacheHitRate() = %v, want 0", got)
	}

	for i := 0; i < 4; i++ {
		o.RecordLookup()
	}
	o.RecordCacheHit("plan_code")
	o.RecordTempID("未知公司", "IN_X")

	stats := o.GetStats()
	if got := stats.CacheHitRate(); got != 0.25 {
		t.Errorf("CacheHitRate() = %v, want 0.25", got)
	}
	if got := stats.TempIDRate(); got != 0.25 {
		t.Errorf("TempIDRate() = %v, want 0.25", got)
	}
}

func TestObserver_UnknownCompanyAggregation(t *testing.T) {
	o := NewObserver()

	o.RecordTempID("公司甲", "IN_FIRST")
	first := o.UnknownCompanies()[0].FirstSeen

	// Repeats bump the count but keep the first-seen id and timestamp.
	o.RecordTempID("公司甲", "IN_SECOND")
	o.RecordTempID("公司乙", "IN_OTHER")
	o.RecordTempID("公司甲", "IN_THIRD")

	unknowns := o.UnknownCompanies()
	if len(unknowns) != 2 {
		t.Fatalf("got %d unknown companies, want 2", len(unknowns))
	}
	// Sorted by occurrence desc.
	if unknowns[0].CompanyName != "公司甲" || unknowns[0].OccurrenceCount != 3 {
		t.Errorf("top unknown = %+v, want 公司甲 with count 3", unknowns[0])
	}
	if unknowns[0].TemporaryID != "IN_FIRST" {
		t.Errorf("TemporaryID = %q, want the initially assigned IN_FIRST", unknowns[0].TemporaryID)
	}
	if !unknowns[0].FirstSeen.Equal(first) {
		t.Error("FirstSeen must not change on repeat occurrences")
	}
}

func TestObserver_UnknownCompanyRows(t *testing.T) {
	o := NewObserver()
	o.RecordTempID("公司甲", "IN_A")
	o.RecordTempID("公司甲", "IN_A")
	o.RecordTempID("公司乙", "IN_B")

	rows := o.UnknownCompanyRows()
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "company_name" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "公司甲" || rows[1][3] != "2" {
		t.Errorf("first data row = %v, want 公司甲 with count 2", rows[1])
	}
}

func TestObserver_Reset(t *testing.T) {
	o := NewObserver()
	o.RecordLookup()
	o.RecordTempID("x", "IN_X")

	o.Reset()

	stats := o.GetStats()
	if stats.TotalLookups != 0 || stats.TempIDsGenerated != 0 {
		t.Errorf("stats after reset = %+v, want zeroes", stats)
	}
	if o.HasUnknownCompanies() {
		t.Error("unknown companies should be cleared on reset")
	}
}

func TestObserver_ConcurrentUse(t *testing.T) {
	o := NewObserver()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				o.RecordLookup()
				o.RecordCacheHit("plan_code")
				o.RecordTempID("并发公司", "IN_C")
			}
		}()
	}
	wg.Wait()

	stats := o.GetStats()
	if stats.TotalLookups != 1000 {
		t.Errorf("TotalLookups = %d, want 1000", stats.TotalLookups)
	}
	if stats.CacheHits != 1000 {
		t.Errorf("CacheHits = %d, want 1000", stats.CacheHits)
	}
	unknowns := o.UnknownCompanies()
	if len(unknowns) != 1 || unknowns[0].OccurrenceCount != 1000 {
		t.Errorf("unknowns = %+v, want one entry with count 1000", unknowns)
	}
}

func TestStats_Merge(t *testing.T) {
	a := Stats{
		TotalLookups:    10,
		CacheHits:       6,
		QueueDepthAfter: 3,
		HitTypeCounts:   map[string]int{"plan_code": 4, "customer_name": 2},
	}
	b := Stats{
		TotalLookups:    5,
		CacheHits:       1,
		QueueDepthAfter: 8,
		HitTypeCounts:   map[string]int{"customer_name": 1},
	}

	merged := a.Merge(b)
	if merged.TotalLookups != 15 || merged.CacheHits != 7 {
		t.Errorf("merged = %+v", merged)
	}
	if merged.QueueDepthAfter != 8 {
		t.Errorf("QueueDepthAfter = %d, want the later run's 8", merged.QueueDepthAfter)
	}
	if merged.HitTypeCounts["customer_name"] != 3 {
		t.Errorf("HitTypeCounts[customer_name] = %d, want 3", merged.HitTypeCounts["customer_name"])
	}
}
