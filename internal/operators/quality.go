package operators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/logger"
	"github.com/maxkimambo/energy-etl/internal/warehouse"
)

// QualityCheckSpec is one assertion: the first column of the first row of
// Query must equal Expected.
type QualityCheckSpec struct {
	Name     string
	Query    string
	Expected any
}

// Label names the check in failure reports
func (c QualityCheckSpec) Label(i int) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("check %d", i+1)
}

// QualityCheckConfig configures a QualityCheck task. All checks must pass.
type QualityCheckConfig struct {
	Checks []QualityCheckSpec
}

// QualityCheckOperator gates downstream tasks on data assertions
type QualityCheckOperator struct{}

// Validate implements Operator
func (QualityCheckOperator) Validate(task dag.TaskDefinition) error {
	cfg, ok := task.Config.(QualityCheckConfig)
	if !ok {
		return configError(task, QualityCheckConfig{})
	}
	if len(cfg.Checks) == 0 {
		return etlerrors.NewInvalidConfigError(task.ID, "at least one check is required")
	}
	for i, c := range cfg.Checks {
		if strings.TrimSpace(c.Query) == "" {
			return etlerrors.NewInvalidConfigError(task.ID, fmt.Sprintf("%s has an empty query", c.Label(i)))
		}
	}
	return nil
}

// Execute implements Operator. Every check runs; the returned error lists
// all mismatches. Transient failures abort immediately so the whole gate is retried.
func (QualityCheckOperator) Execute(ctx context.Context, task dag.TaskDefinition, clients Clients) error {
	const op = "Data quality check"
	cfg, ok := task.Config.(QualityCheckConfig)
	if !ok {
		return configError(task, QualityCheckConfig{})
	}

	var failures []string
	err := withSession(ctx, clients, op, func(s warehouse.Session) error {
		for i, check := range cfg.Checks {
			got, err := s.QueryScalar(ctx, check.Query)
			if err != nil {
				if errors.Is(err, warehouse.ErrNoRows) {
					failures = append(failures, fmt.Sprintf("%s: %s returned no rows, expected %s",
						check.Label(i), oneLine(check.Query), FormatScalar(check.Expected)))
					continue
				}
				if classified := Classify(op, err); etlerrors.IsRetriable(classified) {
					return classified
				}
				failures = append(failures, fmt.Sprintf("%s: %s failed: %v", check.Label(i), oneLine(check.Query), err))
				continue
			}
			if !ScalarsEqual(got, check.Expected) {
				failures = append(failures, fmt.Sprintf("%s: %s returned %s, expected %s",
					check.Label(i), oneLine(check.Query), FormatScalar(got), FormatScalar(check.Expected)))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(failures) > 0 {
		logger.Op.WithFields(map[string]interface{}{
			"task":     task.ID,
			"failures": len(failures),
			"checks":   len(cfg.Checks),
		}).Warn("Data quality checks failed")
		return etlerrors.NewQualityAssertionError(task.ID, len(cfg.Checks), failures)
	}

	logger.Op.WithFields(map[string]interface{}{"task": task.ID, "checks": len(cfg.Checks)}).
		Debug("All data quality checks passed")
	return nil
}

func oneLine(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
