package resolver

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level, concurrency-safe validator instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Strategy configures one batch resolution: which columns carry the weak
// keys and which behaviors are enabled. The defaults match the monthly
// annuity spreadsheets this pipeline was built for.
type Strategy struct {
	PlanCodeColumn      string `validate:"omitempty,min=1"`
	CustomerNameColumn  string `validate:"required,min=1"`
	AccountNameColumn   string
	AccountNumberColumn string
	CompanyIDColumn     string
	OutputColumn        string `validate:"required,min=1"`

	GenerateTempIDs  bool
	EnableBackflow   bool
	EnableAsyncQueue bool
}

// DefaultStrategy returns the strategy for the standard annuity layout.
func DefaultStrategy() Strategy {
	return Strategy{
		PlanCodeColumn:      "计划代码",
		CustomerNameColumn:  "客户名称",
		AccountNameColumn:   "年金账户名",
		AccountNumberColumn: "集团企业客户号",
		CompanyIDColumn:     "公司代码",
		OutputColumn:        "company_id",
		GenerateTempIDs:     true,
		EnableBackflow:      true,
		EnableAsyncQueue:    true,
	}
}

// Validate checks the strategy is usable. Returns a ConfigError on failure.
func (s Strategy) Validate() error {
	if err := validate.Struct(s); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("invalid strategy: %v", err)}
	}
	return nil
}

// BackflowStats counts cache writes from the passthrough step.
type BackflowStats struct {
	Inserted int64
	Skipped  int64
}

// Statistics describes how a batch was resolved, layer by layer.
type Statistics struct {
	TotalRows          int
	YamlHits           map[string]int // by override level: plan, account, ...
	DBCacheHits        map[string]int // by lookup type: plan_code, ...
	ExistingColumnHits int
	EqcSyncHits        int
	TempIDsGenerated   int
	AsyncQueued        int64
	Unresolved         int
	BudgetConsumed     int
	BudgetRemaining    int
	Backflow           BackflowStats

	// DecisionPaths records the DB-cache layer's per-row decision string,
	// keyed by row index ("DB-P1:MISS→DB-P2:HIT" and so on). Only rows that
	// reached the DB-cache layer appear.
	DecisionPaths map[int]string

	// DecisionPathCounts aggregates DecisionPaths for summary logging.
	DecisionPathCounts map[string]int
}

func newStatistics(totalRows, budget int) *Statistics {
	return &Statistics{
		TotalRows:          totalRows,
		YamlHits:           map[string]int{},
		DBCacheHits:        map[string]int{},
		BudgetRemaining:    budget,
		DecisionPaths:      map[int]string{},
		DecisionPathCounts: map[string]int{},
	}
}

// YamlHitsTotal sums the override-layer hits across levels.
func (s *Statistics) YamlHitsTotal() int {
	total := 0
	for _, n := range s.YamlHits {
		total += n
	}
	return total
}

// DBCacheHitsTotal sums the cache-layer hits across lookup types.
func (s *Statistics) DBCacheHitsTotal() int {
	total := 0
	for _, n := range s.DBCacheHits {
		total += n
	}
	return total
}

// Result is the outcome of a batch resolution. Rows are annotated in place;
// Table aliases the input table.
type Result struct {
	Table      Table
	Statistics *Statistics
}
