package dag

import (
	"fmt"
	"strings"
)

// Kind is the closed set of operator kinds a task may use
type Kind string

const (
	KindStage         Kind = "stage"
	KindLoadFact      Kind = "load_fact"
	KindLoadDimension Kind = "load_dimension"
	KindQualityCheck  Kind = "quality_check"
	KindNoOp          Kind = "noop"
)

// Kinds lists every operator kind in declaration order
var Kinds = []Kind{KindStage, KindLoadFact, KindLoadDimension, KindQualityCheck, KindNoOp}

// ParseKind accepts the canonical token case-insensitively
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown operator kind %q", s)
}

// String returns the canonical token
func (k Kind) String() string {
	return string(k)
}

// TaskDefinition is one node of a pipeline graph. Config holds the
// operator-specific configuration and is interpreted by the operator only.
type TaskDefinition struct {
	ID       string
	Kind     Kind
	Config   any
	Upstream []string
	// DependsOnPast requires the same task to have succeeded in the previous scheduled run
	DependsOnPast bool
}
