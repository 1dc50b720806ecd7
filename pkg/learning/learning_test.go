package learning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/normalize"
	"github.com/wisbric/companyid/pkg/resolver"
)

type fakeStore struct {
	upserts   [][]mapping.IndexRecord
	upsertErr error
}

func (f *fakeStore) LookupIndexBatch(_ context.Context, _ map[mapping.LookupType][]string) (map[mapping.IndexKey]mapping.IndexRecord, error) {
	return nil, nil
}

func (f *fakeStore) UpsertIndexBatch(_ context.Context, records []mapping.IndexRecord) (mapping.UpsertResult, error) {
	if f.upsertErr != nil {
		return mapping.UpsertResult{}, f.upsertErr
	}
	f.upserts = append(f.upserts, records)
	return mapping.UpsertResult{Affected: int64(len(records))}, nil
}

func (f *fakeStore) UpdateHitCount(_ context.Context, _ string, _ mapping.LookupType) (bool, error) {
	return true, nil
}

func (f *fakeStore) EnqueueRequests(_ context.Context, _ []mapping.EnqueueRequest) (mapping.EnqueueResult, error) {
	return mapping.EnqueueResult{}, nil
}

func (f *fakeStore) allRecords() []mapping.IndexRecord {
	var out []mapping.IndexRecord
	for _, batch := range f.upserts {
		out = append(out, batch...)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinRecords = 2
	return cfg
}

func newService(t *testing.T, store resolver.MappingStore, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(store, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc
}

func testTable() resolver.Table {
	return resolver.Table{
		{"company_id": "614810477", "计划代码": "FP0001", "客户名称": "中国平安", "集团企业客户号": "C001", "年金账户名": "平安账户"},
		{"company_id": "614810477", "计划代码": "FP0001", "客户名称": "中国平安", "集团企业客户号": "C001", "年金账户名": "平安账户"},
		{"company_id": "608349737", "计划代码": "AN001", "客户名称": "测试企业A", "集团企业客户号": "C002", "年金账户名": "测试账户"},
	}
}

func TestLearnFromDomain_ExtractsAllEnabledTypes(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store, testConfig())

	result, err := svc.LearnFromDomain(context.Background(), "annuity_performance", "annuity_performance_new", testTable())
	if err != nil {
		t.Fatalf("LearnFromDomain() error: %v", err)
	}

	if result.ValidRecords != 3 {
		t.Errorf("ValidRecords = %d, want 3", result.ValidRecords)
	}
	// Two distinct companies: 2 plan codes, 2 account names, 2 account
	// numbers, 2 customer names, 2 plan_customer combos.
	for _, typeKey := range []string{"plan_code", "account_name", "account_number", "customer_name", "plan_customer"} {
		if result.Extracted[typeKey] != 2 {
			t.Errorf("Extracted[%s] = %d, want 2", typeKey, result.Extracted[typeKey])
		}
	}

	records := store.allRecords()
	byKey := map[mapping.IndexKey]mapping.IndexRecord{}
	for _, r := range records {
		byKey[mapping.IndexKey{Type: r.LookupType, Key: r.LookupKey}] = r
		if r.Source != mapping.SourceDomainLearning {
			t.Errorf("record source = %q, want domain_learning", r.Source)
		}
		if r.SourceDomain == nil || *r.SourceDomain != "annuity_performance" {
			t.Error("record missing source domain")
		}
	}

	// Customer names stored normalized; plan_customer composite too.
	normalized := normalize.Name("中国平安")
	if _, ok := byKey[mapping.IndexKey{Type: mapping.LookupCustomerName, Key: normalized}]; !ok {
		t.Error("missing normalized customer_name record")
	}
	pc := mapping.PlanCustomerKey("FP0001", normalized)
	if _, ok := byKey[mapping.IndexKey{Type: mapping.LookupPlanCustomer, Key: pc}]; !ok {
		t.Error("missing plan_customer record")
	}

	// Per-type confidences applied.
	plan := byKey[mapping.IndexKey{Type: mapping.LookupPlanCode, Key: "FP0001"}]
	if plan.Confidence != 0.95 {
		t.Errorf("plan_code confidence = %v, want 0.95", plan.Confidence)
	}
	name := byKey[mapping.IndexKey{Type: mapping.LookupCustomerName, Key: normalized}]
	if name.Confidence != 0.85 {
		t.Errorf("customer_name confidence = %v, want 0.85", name.Confidence)
	}
}

func TestLearnFromDomain_FiltersIneligibleIDs(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store, testConfig())

	table := resolver.Table{
		{"company_id": "614810477", "计划代码": "FP0001", "客户名称": "公司A"},
		{"company_id": "614810478", "计划代码": "FP0002", "客户名称": "公司B"},
		{"company_id": "IN_ABCDEFGH23456789", "计划代码": "FP0003", "客户名称": "公司C"}, // temp id
		{"计划代码": "FP0004", "客户名称": "公司D"},                                       // null id
		{"company_id": "not-numeric", "计划代码": "FP0005", "客户名称": "公司E"},           // non-numeric
	}

	result, err := svc.LearnFromDomain(context.Background(), "annuity_performance", "t", table)
	if err != nil {
		t.Fatalf("LearnFromDomain() error: %v", err)
	}

	if result.ValidRecords != 2 {
		t.Errorf("ValidRecords = %d, want 2", result.ValidRecords)
	}
	if result.SkippedByReason["temp_id"] != 1 {
		t.Errorf("SkippedByReason[temp_id] = %d, want 1", result.SkippedByReason["temp_id"])
	}
	if result.SkippedByReason["null_company_id"] != 1 {
		t.Errorf("SkippedByReason[null_company_id] = %d, want 1", result.SkippedByReason["null_company_id"])
	}

	for _, r := range store.allRecords() {
		if r.CompanyID != "614810477" && r.CompanyID != "614810478" {
			t.Errorf("learned ineligible company id %q", r.CompanyID)
		}
	}
}

func TestLearnFromDomain_BelowThresholdSkips(t *testing.T) {
	store := &fakeStore{}
	cfg := testConfig()
	cfg.MinRecords = 10
	svc := newService(t, store, cfg)

	result, err := svc.LearnFromDomain(context.Background(), "annuity_performance", "t", testTable())
	if err != nil {
		t.Fatalf("LearnFromDomain() error: %v", err)
	}

	if result.SkippedByReason["below_threshold"] == 0 {
		t.Error("expected below_threshold skip")
	}
	if len(store.upserts) != 0 {
		t.Error("no records should be written below the threshold")
	}
}

func TestLearnFromDomain_DisabledDomainSkips(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store, testConfig())

	result, err := svc.LearnFromDomain(context.Background(), "unknown_domain", "t", testTable())
	if err != nil {
		t.Fatalf("LearnFromDomain() error: %v", err)
	}

	if result.SkippedByReason["domain_disabled"] == 0 {
		t.Error("expected domain_disabled skip")
	}
	if len(store.upserts) != 0 {
		t.Error("disabled domains must not write records")
	}
}

func TestLearnFromDomain_LowConfidenceTypeSkipped(t *testing.T) {
	store := &fakeStore{}
	cfg := testConfig()
	cfg.ConfidenceLevels["customer_name"] = 0.5 // below MinConfidence 0.80
	svc := newService(t, store, cfg)

	result, err := svc.LearnFromDomain(context.Background(), "annuity_performance", "t", testTable())
	if err != nil {
		t.Fatalf("LearnFromDomain() error: %v", err)
	}

	if _, ok := result.Extracted["customer_name"]; ok {
		t.Error("low-confidence type should not extract")
	}
	for _, r := range store.allRecords() {
		if r.LookupType == mapping.LookupCustomerName {
			t.Error("customer_name records written despite low confidence")
		}
	}
}

func TestLearnFromDomainSafely_SwallowsErrors(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("connection lost")}
	svc := newService(t, store, testConfig())

	// Must not panic or propagate the error.
	result := svc.LearnFromDomainSafely(context.Background(), "annuity_performance", "t", testTable())
	if result.Inserted != 0 {
		t.Errorf("Inserted = %d, want 0 on failure", result.Inserted)
	}
}

func TestEligibleCompanyID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"614810477", true},
		{" 614810477 ", true},
		{"IN_ABCDEFGH23456789", false},
		{"INABCDEFGH", false},
		{"", false},
		{"abc123", false},
		{"61481-0477", false},
	}
	for _, tt := range tests {
		if got := eligibleCompanyID(tt.id); got != tt.want {
			t.Errorf("eligibleCompanyID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
