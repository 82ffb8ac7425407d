package operators

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/logger"
	"github.com/maxkimambo/energy-etl/internal/objectstore"
	"github.com/maxkimambo/energy-etl/internal/warehouse"
)

// DefaultRegion is the bucket region used by COPY when none is configured
const DefaultRegion = "us-west-2"

// StageConfig configures a Stage task
type StageConfig struct {
	Table        string
	CreateSQL    string
	Source       objectstore.Reference
	CredentialID string
	Region       string
	// IgnoreHeader skips this many leading lines of every file
	IgnoreHeader int
}

// StageOperator drops, recreates and bulk loads a staging table from the object store
type StageOperator struct{}

// Validate implements Operator
func (StageOperator) Validate(task dag.TaskDefinition) error {
	cfg, ok := task.Config.(StageConfig)
	if !ok {
		return configError(task, StageConfig{})
	}
	if err := validTable(task.ID, cfg.Table); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.CreateSQL) == "" {
		return etlerrors.NewInvalidConfigError(task.ID, "create_sql is required")
	}
	if cfg.Source.Bucket == "" {
		return etlerrors.NewInvalidConfigError(task.ID, "source bucket is required")
	}
	if cfg.CredentialID == "" {
		return etlerrors.NewInvalidConfigError(task.ID, "credential id is required")
	}
	if cfg.IgnoreHeader < 0 {
		return etlerrors.NewInvalidConfigError(task.ID, "ignore_header cannot be negative")
	}
	return nil
}

// Execute implements Operator
func (StageOperator) Execute(ctx context.Context, task dag.TaskDefinition, clients Clients) error {
	const op = "Stage table"
	cfg, ok := task.Config.(StageConfig)
	if !ok {
		return configError(task, StageConfig{})
	}

	if clients.Credentials == nil {
		return etlerrors.NewCredentialNotFoundError(cfg.CredentialID)
	}
	cred, err := clients.Credentials.Resolve(ctx, cfg.CredentialID)
	if err != nil {
		return Classify(op, err)
	}

	resolver := clients.Resolver
	if resolver == nil {
		resolver = objectstore.BucketResolver{}
	}
	location, err := resolver.Resolve(cfg.Source)
	if err != nil {
		return etlerrors.NewInvalidConfigError(task.ID, err.Error())
	}

	logger.Op.WithFields(map[string]interface{}{
		"task":   task.ID,
		"table":  cfg.Table,
		"source": location,
	}).Debug("Staging table")

	return withSession(ctx, clients, op, func(s warehouse.Session) error {
		if err := s.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", cfg.Table)); err != nil {
			return err
		}
		if err := s.Exec(ctx, cfg.CreateSQL); err != nil {
			return err
		}
		return s.Exec(ctx, copySQL(cfg, location, cred.AccessKey, cred.SecretKey))
	})
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func copySQL(cfg StageConfig, location, accessKey, secretKey string) string {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("COPY %s\n", cfg.Table))
	sb.WriteString(fmt.Sprintf("FROM %s\n", quote(location)))
	sb.WriteString(fmt.Sprintf("ACCESS_KEY_ID %s\n", quote(accessKey)))
	sb.WriteString(fmt.Sprintf("SECRET_ACCESS_KEY %s\n", quote(secretKey)))
	sb.WriteString("FORMAT AS CSV\n")
	sb.WriteString("DATEFORMAT 'auto'\n")
	sb.WriteString(fmt.Sprintf("REGION %s", quote(region)))
	if cfg.IgnoreHeader > 0 {
		sb.WriteString(fmt.Sprintf("\nIGNOREHEADER %d", cfg.IgnoreHeader))
	}
	return sb.String()
}
