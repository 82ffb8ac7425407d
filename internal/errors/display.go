package errors

import (
	"errors"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for command-line display with proper spacing
func FormatForCLI(err error) string {
	var te *TaskError
	if !errors.As(err, &te) {
		return fmt.Sprintf("\nError: %v\n", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\nError [%s]\n", te.Kind))
	sb.WriteString(fmt.Sprintf("  %s\n", te.Message))

	if te.Operation != "" {
		sb.WriteString(fmt.Sprintf("\nFailed Operation: %s\n", te.Operation))
	}

	if len(te.Failures) > 0 {
		sb.WriteString("\nFailures:\n")
		for i, f := range te.Failures {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, f))
		}
	}

	if len(te.Context) > 0 {
		sb.WriteString("\nDetails:\n")
		for key, value := range te.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", key, value))
		}
	}

	if len(te.Troubleshooting) > 0 {
		sb.WriteString("\nHow to resolve:\n")
		for i, step := range te.Troubleshooting {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}

	if te.Cause != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", te.Cause))
	}

	return sb.String()
}

// Summary provides a brief single-line summary of the error for logs and tables
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var te *TaskError
	if errors.As(err, &te) {
		msg := fmt.Sprintf("%s: %s", te.Kind, te.Message)
		if len(te.Failures) > 0 && te.Kind == KindQualityAssertionFailed {
			msg += " [" + strings.Join(te.Failures, "; ") + "]"
		}
		return msg
	}

	errStr := err.Error()
	if len(errStr) > 100 {
		return errStr[:97] + "..."
	}
	return errStr
}

// IsUserError determines if an error is due to pipeline definition mistakes
func IsUserError(err error) bool {
	switch KindOf(err) {
	case KindCycleDetected, KindUnknownUpstream, KindDuplicateID, KindInvalidConfig:
		return true
	}
	return false
}
