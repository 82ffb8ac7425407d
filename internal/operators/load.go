package operators

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/warehouse"
)

// LoadFactConfig configures a LoadFact task. When CreateSQL is set the
// table is dropped and recreated in the same transaction as the insert.
type LoadFactConfig struct {
	Table     string
	CreateSQL string
	SelectSQL string
}

// LoadFactOperator appends the result of a select to a fact table atomically
type LoadFactOperator struct{}

// Validate implements Operator
func (LoadFactOperator) Validate(task dag.TaskDefinition) error {
	cfg, ok := task.Config.(LoadFactConfig)
	if !ok {
		return configError(task, LoadFactConfig{})
	}
	if err := validTable(task.ID, cfg.Table); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.SelectSQL) == "" {
		return etlerrors.NewInvalidConfigError(task.ID, "select_sql is required")
	}
	return nil
}

// Execute implements Operator
func (LoadFactOperator) Execute(ctx context.Context, task dag.TaskDefinition, clients Clients) error {
	cfg, ok := task.Config.(LoadFactConfig)
	if !ok {
		return configError(task, LoadFactConfig{})
	}

	return withSession(ctx, clients, "Load fact table", func(s warehouse.Session) error {
		return s.InTx(ctx, func(tx warehouse.Executor) error {
			if strings.TrimSpace(cfg.CreateSQL) != "" {
				if err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", cfg.Table)); err != nil {
					return err
				}
				if err := tx.Exec(ctx, cfg.CreateSQL); err != nil {
					return err
				}
			}
			return tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (\n%s\n)", cfg.Table, strings.TrimSpace(cfg.SelectSQL)))
		})
	})
}

// LoadDimensionConfig configures a LoadDimension task
type LoadDimensionConfig struct {
	Table     string
	SelectSQL string
}

// LoadDimensionOperator fully refreshes a dimension table from a select
type LoadDimensionOperator struct{}

// Validate implements Operator
func (LoadDimensionOperator) Validate(task dag.TaskDefinition) error {
	cfg, ok := task.Config.(LoadDimensionConfig)
	if !ok {
		return configError(task, LoadDimensionConfig{})
	}
	if err := validTable(task.ID, cfg.Table); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.SelectSQL) == "" {
		return etlerrors.NewInvalidConfigError(task.ID, "select_sql is required")
	}
	return nil
}

// Execute implements Operator
func (LoadDimensionOperator) Execute(ctx context.Context, task dag.TaskDefinition, clients Clients) error {
	cfg, ok := task.Config.(LoadDimensionConfig)
	if !ok {
		return configError(task, LoadDimensionConfig{})
	}

	return withSession(ctx, clients, "Load dimension table", func(s warehouse.Session) error {
		return s.InTx(ctx, func(tx warehouse.Executor) error {
			if err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", cfg.Table)); err != nil {
				return err
			}
			return tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS (\n%s\n)", cfg.Table, strings.TrimSpace(cfg.SelectSQL)))
		})
	})
}
