package resolver

import "fmt"

// ConfigError means the batch cannot run as configured (missing columns,
// invalid strategy). It is fatal for the batch and carries no row data.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "resolver config: " + e.Reason
}

// RepositoryError wraps a repository failure on the critical path (the
// batch cache lookup). Non-critical repository failures are logged and
// swallowed instead.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("resolver repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}
