// Package learning extracts company id mappings from successfully loaded
// domain tables and feeds them back into the enrichment_index cache, so the
// pipeline teaches itself the mappings it keeps re-deriving.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/normalize"
	"github.com/wisbric/companyid/pkg/resolver"
	"github.com/wisbric/companyid/pkg/tempid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ColumnMapping names the columns of a domain table per lookup type, plus
// the company id column. Keys: company_id, plan_code, account_name,
// account_number, customer_name.
type ColumnMapping map[string]string

// Config controls which domains and lookup types participate in learning
// and with what trust.
type Config struct {
	EnabledDomains     []string                       `validate:"required,min=1"`
	EnabledLookupTypes map[string]bool                `validate:"required"`
	ConfidenceLevels   map[string]float64             `validate:"required"`
	MinRecords         int                            `validate:"gte=0"`
	MinConfidence      float64                        `validate:"gte=0,lte=1"`
	ColumnMappings     map[string]ColumnMapping       `validate:"required"`
}

// DefaultConfig returns the standard learning configuration for the annuity
// domains.
func DefaultConfig() Config {
	return Config{
		EnabledDomains: []string{"annuity_performance", "annuity_income"},
		EnabledLookupTypes: map[string]bool{
			"plan_code":      true,
			"account_name":   true,
			"account_number": true,
			"customer_name":  true,
			"plan_customer":  true,
		},
		ConfidenceLevels: map[string]float64{
			"plan_code":      0.95,
			"account_number": 0.95,
			"plan_customer":  0.90,
			"account_name":   0.90,
			"customer_name":  0.85,
		},
		MinRecords:    10,
		MinConfidence: 0.80,
		ColumnMappings: map[string]ColumnMapping{
			"annuity_performance": {
				"company_id":     "company_id",
				"plan_code":      "计划代码",
				"account_name":   "年金账户名",
				"account_number": "集团企业客户号",
				"customer_name":  "客户名称",
			},
			"annuity_income": {
				"company_id":    "company_id",
				"plan_code":     "计划代码",
				"customer_name": "客户名称",
			},
		},
	}
}

// Result summarizes one learning pass.
type Result struct {
	DomainName      string
	TableName       string
	TotalRecords    int
	ValidRecords    int
	Extracted       map[string]int
	Inserted        int64
	Updated         int64
	Skipped         int
	SkippedByReason map[string]int
}

// Service learns mappings from resolved tables.
type Service struct {
	store  resolver.MappingStore
	config Config
	logger *slog.Logger
}

// NewService creates a learning service.
func NewService(store resolver.MappingStore, config Config, logger *slog.Logger) (*Service, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid learning config: %w", err)
	}
	return &Service{store: store, config: config, logger: logger}, nil
}

type lookupTypeSpec struct {
	key        string
	lookupType mapping.LookupType
	normalized bool
}

var lookupTypeSpecs = []lookupTypeSpec{
	{"plan_code", mapping.LookupPlanCode, false},
	{"account_name", mapping.LookupAccountName, false},
	{"account_number", mapping.LookupAccountNumber, false},
	{"customer_name", mapping.LookupCustomerName, true},
	{"plan_customer", mapping.LookupPlanCustomer, true},
}

// eligibleCompanyID reports whether an id may be learned: all digits and
// not a temporary id.
func eligibleCompanyID(id string) bool {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || tempid.IsTemp(trimmed) {
		return false
	}
	for _, c := range trimmed {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// LearnFromDomain scans the annotated table and upserts the distinct
// (key → id) pairs it finds, per enabled lookup type, with the configured
// per-type confidence. Disabled domains, missing column mappings, and
// too-small tables skip without error.
func (s *Service) LearnFromDomain(ctx context.Context, domainName, tableName string, table resolver.Table) (Result, error) {
	result := Result{
		DomainName:      domainName,
		TableName:       tableName,
		TotalRecords:    len(table),
		Extracted:       map[string]int{},
		SkippedByReason: map[string]int{},
	}

	if !s.domainEnabled(domainName) {
		s.logger.Warn("learning skipped, domain disabled", "domain", domainName)
		result.Skipped = result.TotalRecords
		result.SkippedByReason["domain_disabled"] = result.TotalRecords
		return result, nil
	}

	columns, ok := s.config.ColumnMappings[domainName]
	if !ok {
		s.logger.Warn("learning skipped, no column mapping", "domain", domainName)
		result.Skipped = result.TotalRecords
		result.SkippedByReason["no_column_mapping"] = result.TotalRecords
		return result, nil
	}

	companyIDColumn := columns["company_id"]
	if companyIDColumn == "" {
		companyIDColumn = "company_id"
	}

	var eligible []resolver.Row
	for _, row := range table {
		id := row.Get(companyIDColumn)
		switch {
		case id == "":
			result.SkippedByReason["null_company_id"]++
		case tempid.IsTemp(strings.TrimSpace(id)):
			result.SkippedByReason["temp_id"]++
		case !eligibleCompanyID(id):
			result.SkippedByReason["non_numeric_id"]++
		default:
			eligible = append(eligible, row)
		}
	}
	result.ValidRecords = len(eligible)

	if result.ValidRecords < s.config.MinRecords {
		s.logger.Info("learning skipped, below record threshold",
			"domain", domainName,
			"valid_records", result.ValidRecords,
			"min_records", s.config.MinRecords,
		)
		result.Skipped = result.TotalRecords
		result.SkippedByReason["below_threshold"] = result.TotalRecords
		return result, nil
	}

	var records []mapping.IndexRecord
	for _, spec := range lookupTypeSpecs {
		if !s.config.EnabledLookupTypes[spec.key] {
			continue
		}
		confidence := s.confidenceFor(spec.key)
		if confidence < s.config.MinConfidence {
			result.SkippedByReason[spec.key+"_low_confidence"]++
			continue
		}

		typeRecords := s.extractType(eligible, domainName, tableName, columns, companyIDColumn, spec, confidence)
		records = append(records, typeRecords...)
		result.Extracted[spec.key] = len(typeRecords)
	}

	if len(records) == 0 {
		s.logger.Info("learning found nothing to insert", "domain", domainName)
		return result, nil
	}

	insertResult, err := s.store.UpsertIndexBatch(ctx, records)
	if err != nil {
		return result, fmt.Errorf("upserting learned mappings: %w", err)
	}
	result.Inserted = insertResult.Affected
	result.Updated = insertResult.Skipped

	s.logger.Info("domain learning complete",
		"domain", domainName,
		"table", tableName,
		"total_records", result.TotalRecords,
		"valid_records", result.ValidRecords,
		"inserted", result.Inserted,
	)
	return result, nil
}

// LearnFromDomainSafely wraps LearnFromDomain so the pipeline never fails
// because learning did: errors are logged and the partial result (counts
// gathered before the failure, nothing inserted) is returned.
func (s *Service) LearnFromDomainSafely(ctx context.Context, domainName, tableName string, table resolver.Table) Result {
	result, err := s.LearnFromDomain(ctx, domainName, tableName, table)
	if err != nil {
		s.logger.Warn("domain learning failed, continuing",
			"domain", domainName,
			"table", tableName,
			"error", err,
		)
	}
	return result
}

func (s *Service) domainEnabled(domainName string) bool {
	for _, d := range s.config.EnabledDomains {
		if d == domainName {
			return true
		}
	}
	return false
}

func (s *Service) confidenceFor(typeKey string) float64 {
	if c, ok := s.config.ConfidenceLevels[typeKey]; ok {
		return c
	}
	return 0.85
}

// extractType builds the distinct index records for one lookup type from
// the eligible rows.
func (s *Service) extractType(rows []resolver.Row, domainName, tableName string, columns ColumnMapping, companyIDColumn string, spec lookupTypeSpec, confidence float64) []mapping.IndexRecord {
	seen := map[string]struct{}{}
	var records []mapping.IndexRecord

	appendRecord := func(key, companyID string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		records = append(records, mapping.IndexRecord{
			LookupKey:    key,
			LookupType:   spec.lookupType,
			CompanyID:    companyID,
			Confidence:   confidence,
			Source:       mapping.SourceDomainLearning,
			SourceDomain: &domainName,
			SourceTable:  &tableName,
		})
	}

	if spec.key == "plan_customer" {
		planColumn := columns["plan_code"]
		customerColumn := columns["customer_name"]
		if planColumn == "" || customerColumn == "" {
			return nil
		}
		for _, row := range rows {
			planCode := strings.TrimSpace(row.Get(planColumn))
			customer := strings.TrimSpace(row.Get(customerColumn))
			companyID := strings.TrimSpace(row.Get(companyIDColumn))
			if planCode == "" || customer == "" || companyID == "" {
				continue
			}
			normalized := normalize.Name(customer)
			if normalized == "" {
				continue
			}
			appendRecord(mapping.PlanCustomerKey(planCode, normalized), companyID)
		}
		return records
	}

	column := columns[spec.key]
	if column == "" {
		return nil
	}
	for _, row := range rows {
		raw := strings.TrimSpace(row.Get(column))
		companyID := strings.TrimSpace(row.Get(companyIDColumn))
		if raw == "" || companyID == "" {
			continue
		}
		key := raw
		if spec.normalized {
			key = normalize.Name(raw)
			if key == "" {
				continue
			}
		}
		appendRecord(key, companyID)
	}
	return records
}
