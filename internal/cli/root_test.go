package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockledger/internal/core/domain"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "stockledger", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "seed", "reconcile", "recover", "sweep"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

// isolateEnv keeps environment overrides from redirecting the commands to a
// real database.
func isolateEnv(t *testing.T) {
	for _, key := range []string{"STOCKLEDGER_DB_DRIVER", "MYSQL_DSN", "SQLITE_PATH", "REDIS_ADDR", "KAFKA_BROKER", "OTEL_ENDPOINT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func sqliteConfigFile(t *testing.T) string {
	db := filepath.Join(t.TempDir(), "cli.db")
	return writeFile(t, "config.yaml", fmt.Sprintf("database:\n  driver: sqlite3\n  dsn: %s\nmonitor:\n  workers: 0\n", db))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

const testCatalog = `
items:
  - id: sku-1
    name: Coffee beans
    quantity: 3
    lowStockThreshold: 5
    price: "12.50"
  - id: sku-2
    name: Filter papers
    quantity: 40
    lowStockThreshold: 5
    price: "3.00"
`

func TestSeedThenReconcile(t *testing.T) {
	isolateEnv(t)
	cfg := sqliteConfigFile(t)
	catalog := writeFile(t, "catalog.yaml", testCatalog)

	out, err := execute(t, "seed", "--config", cfg, "--file", catalog)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 2 items")

	out, err = execute(t, "reconcile", "--config", cfg)
	require.NoError(t, err)

	var reports []domain.ReconcileReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.OK, r.ItemID)
		assert.Zero(t, r.Entries)
	}

	out, err = execute(t, "reconcile", "sku-2", "--config", cfg)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 40, reports[0].Actual)
}

func TestReconcileUnknownItem(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "reconcile", "missing", "--config", sqliteConfigFile(t))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSeedRequiresFile(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "seed", "--config", sqliteConfigFile(t))
	assert.ErrorContains(t, err, "file")
}

func TestSweep(t *testing.T) {
	isolateEnv(t)
	cfg := sqliteConfigFile(t)

	_, err := execute(t, "seed", "--config", cfg, "--file", writeFile(t, "catalog.yaml", testCatalog))
	require.NoError(t, err)

	out, err := execute(t, "sweep", "--config", cfg)
	require.NoError(t, err)

	var digest domain.LowStockDigest
	require.NoError(t, json.Unmarshal([]byte(out), &digest))
	require.Len(t, digest.Items, 1)
	assert.Equal(t, "sku-1", digest.Items[0].ItemID)
}

func TestRecoverNothingStale(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "recover", "--config", sqliteConfigFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"scanned": 0`)
}

func TestDriftError(t *testing.T) {
	assert.NoError(t, driftError([]domain.ReconcileReport{{ItemID: "a", OK: true}}))

	err := driftError([]domain.ReconcileReport{{ItemID: "a", OK: true}, {ItemID: "b"}})
	assert.ErrorIs(t, err, ErrDrift)
	assert.ErrorContains(t, err, "b")
}
