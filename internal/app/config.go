package app

import (
	"errors"
	"fmt"

	"github.com/maxkimambo/energy-etl/internal/pipeline"
)

// DefaultPipelinePath is the pipeline file used when none is given
const DefaultPipelinePath = "pipelines/euro_energy.hcl"

// Config holds the flag values of a CLI invocation
type Config struct {
	PipelinePath    string
	CredentialsFile string
	// LedgerDir selects the JSON file ledger; empty keeps run history in memory
	LedgerDir string
	// RunKey overrides the schedule key derived from the clock
	RunKey         string
	BucketOverride string
	// MaxParallel overrides the pipeline's max_parallel when positive
	MaxParallel int
	DotOut      string
	MetricsAddr string
}

// Validate checks the flag combination before anything is loaded
func (c *Config) Validate() error {
	if c.PipelinePath == "" {
		return errors.New("pipeline path is required")
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max parallel cannot be negative, got %d", c.MaxParallel)
	}
	if c.RunKey != "" {
		if _, err := pipeline.ParseRunKey(c.RunKey); err != nil {
			return err
		}
	}
	return nil
}
