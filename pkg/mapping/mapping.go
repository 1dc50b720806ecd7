// Package mapping persists the company identity cache (enrichment_index)
// and offers batch-optimized lookups and confidence-aware upserts.
package mapping

import (
	"strings"
	"time"
)

// LookupType is one of the five cache dimensions a key can be stored under.
type LookupType string

const (
	LookupPlanCode      LookupType = "plan_code"
	LookupAccountName   LookupType = "account_name"
	LookupAccountNumber LookupType = "account_number"
	LookupCustomerName  LookupType = "customer_name"
	LookupPlanCustomer  LookupType = "plan_customer"
)

// Source identifies where a cache row came from.
type Source string

const (
	SourceInternal       Source = "internal"
	SourceEQC            Source = "eqc"
	SourceBackflow       Source = "pipeline_backflow"
	SourceDomainLearning Source = "domain_learning"
)

// IndexRecord is one row of enrichment_index. LookupKey is stored normalized
// for customer_name (and the customer half of plan_customer) and raw for the
// other types; Store applies the normalization, callers pass raw keys.
type IndexRecord struct {
	LookupKey    string
	LookupType   LookupType
	CompanyID    string
	Confidence   float64
	Source       Source
	SourceDomain *string
	SourceTable  *string
	HitCount     int64
	LastHitAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IndexKey addresses one cache row.
type IndexKey struct {
	Type LookupType
	Key  string
}

// EnqueueRequest is one name queued for asynchronous enrichment.
type EnqueueRequest struct {
	RawName        string
	NormalizedName string
	TempID         string
}

// UpsertResult reports the outcome of a batch upsert.
type UpsertResult struct {
	Affected int64
	Skipped  int64
}

// EnqueueResult reports the outcome of a batch enqueue.
type EnqueueResult struct {
	Queued  int64
	Skipped int64
}

// invalidSentinels are values that look like ids but mean "no id". Matching
// is case-insensitive after trimming.
var invalidSentinels = map[string]struct{}{
	"N": {}, "NA": {}, "N/A": {}, "NONE": {}, "NULL": {}, "NAN": {},
}

// ValidCompanyID reports whether id is usable as a resolved company id:
// non-empty after trimming and not a known placeholder.
func ValidCompanyID(id string) bool {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return false
	}
	_, sentinel := invalidSentinels[strings.ToUpper(trimmed)]
	return !sentinel
}

// PlanCustomerKey builds the composite plan_customer lookup key from a plan
// code and an already-normalized customer name.
func PlanCustomerKey(planCode, normalizedCustomer string) string {
	return planCode + "|" + normalizedCustomer
}
