package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// promptForConfirmation asks before an operation that replaces stored state.
// With autoApprove set it returns true without prompting.
func promptForConfirmation(in io.Reader, out io.Writer, autoApprove bool, action, details string) (bool, error) {
	if autoApprove {
		return true, nil
	}
	fmt.Fprintf(out, `
*********************************************************
  WARNING
  About to %s
  Details: %s
*********************************************************
Are you sure you want to continue? (yes/no): `, action, details)

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return false, fmt.Errorf("failed to read user confirmation: %w", err)
	}

	input = strings.ToLower(strings.TrimSpace(input))
	return input == "yes" || input == "y", nil
}
