package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

// DSNEnv names the variable holding the warehouse used by integration tests.
// Any Postgres-protocol database works; the stage operator's COPY FROM S3 is
// Redshift-only, so scenarios seed their staging tables with SQL instead.
const DSNEnv = "ENERGY_ETL_TEST_DSN"

// Workspace is a scratch directory plus a unique table suffix, so parallel
// tests never touch each other's tables.
type Workspace struct {
	Dir             string
	Suffix          string
	CredentialsPath string
	LedgerDir       string
	DB              *sql.DB
}

// Table returns name with the workspace suffix appended
func (w *Workspace) Table(name string) string {
	return name + "_" + w.Suffix
}

// Render replaces {{suffix}} in a template with the workspace suffix
func (w *Workspace) Render(tmpl string) string {
	return strings.ReplaceAll(tmpl, "{{suffix}}", w.Suffix)
}

// WritePipeline renders tmpl and writes it as the workspace pipeline file
func (w *Workspace) WritePipeline(t *testing.T, tmpl string) string {
	t.Helper()
	path := filepath.Join(w.Dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(w.Render(tmpl)), 0o600))
	return path
}

// Exec runs rendered statements against the test warehouse
func (w *Workspace) Exec(t *testing.T, statements ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, stmt := range statements {
		_, err := w.DB.ExecContext(ctx, w.Render(stmt))
		require.NoError(t, err, "statement failed: %s", stmt)
	}
}

// Count returns the row count of a suffixed table
func (w *Workspace) Count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	err := w.DB.QueryRow(fmt.Sprintf("SELECT count(*) FROM %s", w.Table(table))).Scan(&n)
	require.NoError(t, err)
	return n
}

// SetupWorkspace creates a workspace and returns a cleanup function that
// drops the given tables unless keep is set.
func SetupWorkspace(t *testing.T, keep bool, tables ...string) (*Workspace, func()) {
	t.Helper()

	dsn := os.Getenv(DSNEnv)
	require.NotEmpty(t, dsn, "%s must be set", DSNEnv)

	randomBytes := make([]byte, 4)
	_, err := rand.Read(randomBytes)
	require.NoError(t, err, "failed to generate random bytes")

	dir := t.TempDir()
	credentials := filepath.Join(dir, "credentials.yaml")
	content := fmt.Sprintf("credentials:\n  warehouse:\n    dsn: %q\n", dsn)
	require.NoError(t, os.WriteFile(credentials, []byte(content), 0o600))

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err, "failed to open test warehouse")

	ws := &Workspace{
		Dir:             dir,
		Suffix:          hex.EncodeToString(randomBytes),
		CredentialsPath: credentials,
		LedgerDir:       filepath.Join(dir, "ledger"),
		DB:              db,
	}

	cleanup := func() {
		defer db.Close()
		if keep {
			t.Logf("Keeping tables with suffix %s", ws.Suffix)
			return
		}
		for _, table := range tables {
			if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", ws.Table(table))); err != nil {
				t.Logf("Warning: failed to drop %s: %v", ws.Table(table), err)
			}
		}
	}
	return ws, cleanup
}
