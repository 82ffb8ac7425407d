package errors

import (
	"fmt"
	"strings"
)

// NewCycleError reports the members of a cycle in traversal order, first member repeated at the end
func NewCycleError(members []string) *TaskError {
	return New(KindCycleDetected,
		fmt.Sprintf("task graph contains a cycle: %s", strings.Join(members, " -> ")),
		"Graph build").
		WithContext("cycle", members).
		WithFailures(members...).
		WithTroubleshooting(
			"Remove one of the upstream references that closes the loop",
			"Run 'energy-etl validate --dot' to inspect the edges",
		)
}

// NewUnknownUpstreamError reports a task that references an undeclared upstream
func NewUnknownUpstreamError(taskID, upstreamID string) *TaskError {
	return New(KindUnknownUpstream,
		fmt.Sprintf("task '%s' depends on unknown task '%s'", taskID, upstreamID),
		"Graph build").
		WithContext("task", taskID).
		WithContext("upstream", upstreamID).
		WithTroubleshooting(
			"Check the spelling of the upstream task id",
			"Declare the upstream task in the same pipeline file",
		)
}

// NewDuplicateIDError reports a task id declared twice
func NewDuplicateIDError(taskID string) *TaskError {
	return New(KindDuplicateID,
		fmt.Sprintf("task id '%s' is declared more than once", taskID),
		"Graph build").
		WithContext("task", taskID)
}

// NewCredentialNotFoundError reports an unresolvable credential id
func NewCredentialNotFoundError(credentialID string) *TaskError {
	return New(KindCredentialNotFound,
		fmt.Sprintf("credential '%s' not found", credentialID),
		"Credential lookup").
		WithContext("credential", credentialID).
		WithTroubleshooting(
			"Add the credential to the credentials file passed with --credentials",
			fmt.Sprintf("Or export ENERGY_ETL_CREDENTIAL_%s_ACCESS_KEY / _SECRET_KEY", EnvName(credentialID)),
		)
}

// NewQualityAssertionError reports every failing check of a quality gate
func NewQualityAssertionError(taskID string, total int, failures []string) *TaskError {
	return New(KindQualityAssertionFailed,
		fmt.Sprintf("%d of %d data quality checks failed", len(failures), total),
		"Data quality check").
		WithContext("task", taskID).
		WithFailures(failures...)
}

// NewUpstreamFailedError is attached to a task skipped because root failed
func NewUpstreamFailedError(root string, rootErr error) *TaskError {
	return New(KindUpstreamFailed,
		fmt.Sprintf("upstream task '%s' failed", root),
		"Dependency check").
		WithContext("failed_task", root).
		WithCause(rootErr)
}

// NewDependsOnPastError is attached to a task held back because its previous run did not succeed
func NewDependsOnPastError(taskID, previousRunKey string, previousStatus string) *TaskError {
	return New(KindDependsOnPast,
		fmt.Sprintf("task '%s' ended %s in previous run '%s'", taskID, previousStatus, previousRunKey),
		"Dependency check").
		WithContext("task", taskID).
		WithContext("previous_run", previousRunKey).
		WithTroubleshooting(
			fmt.Sprintf("Re-run '%s' until it succeeds, then trigger this run again", previousRunKey),
		)
}

// NewInvalidConfigError reports a task whose configuration does not fit its operator kind
func NewInvalidConfigError(taskID, reason string) *TaskError {
	return New(KindInvalidConfig,
		fmt.Sprintf("task '%s' has invalid configuration: %s", taskID, reason),
		"Pipeline validation").
		WithContext("task", taskID)
}

// EnvName converts a credential id into the upper-case form used in environment variable names
func EnvName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
}
