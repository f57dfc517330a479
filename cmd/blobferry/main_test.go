package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/docstore"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/internal/tkv"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/ledger"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/migrate"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) (configPath, ledgerDir string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")
	ledgerDir = filepath.Join(dir, "ledger")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE specbook_items (id INTEGER PRIMARY KEY, name TEXT, image_url TEXT, sub_images TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO specbook_items VALUES
		(1, 'Sink', 'data:image/png;base64,iVBORw0KGgo=', '[]'),
		(2, 'Lamp', 'https://x/lamp.png', '[]')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	configPath = filepath.Join(dir, "blobferry.yaml")
	body := fmt.Sprintf(`
source:
  sqlitePath: %s
migration:
  delay: 50ms
ledgerDir: %s
logLevel: error
`, dbPath, ledgerDir)
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))
	return configPath, ledgerDir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

func TestDryRunPass(t *testing.T) {
	configPath, ledgerDir := writeFixture(t)

	require.NoError(t, execute(t, "run", "--config", configPath, "--kind", "specbook_item", "--dry-run"))

	store, err := tkv.New(tkv.Config{Logger: newLogger(slog.LevelError), Directory: ledgerDir})
	require.NoError(t, err)
	defer store.Close()

	local, err := docstore.NewLocal(store, 0, nil)
	require.NoError(t, err)
	rec, err := local.Get(context.Background(), "specbook_items", "1")
	require.NoError(t, err)
	img, _ := rec.String("image_url")
	assert.Equal(t, "gs://dry-run/specbook/1/main.png", img)

	l, err := ledger.New(store, nil)
	require.NoError(t, err)
	latest, err := l.Latest("specbook_items")
	require.NoError(t, err)
	assert.Empty(t, latest, "dry-run outcomes are not recorded")
}

func TestDryRunKeepsRetryTargets(t *testing.T) {
	configPath, ledgerDir := writeFixture(t)

	openLedger := func() (*ledger.Ledger, func()) {
		store, err := tkv.New(tkv.Config{Logger: newLogger(slog.LevelError), Directory: ledgerDir})
		require.NoError(t, err)
		l, err := ledger.New(store, nil)
		require.NoError(t, err)
		return l, func() { store.Close() }
	}

	l, closeStore := openLedger()
	require.NoError(t, l.Record(ledger.Entry{
		PassID:     "earlier-pass",
		Kind:       "specbook_item",
		Collection: "specbook_items",
		Key:        "1",
		State:      string(migrate.StateFailed),
		Reason:     string(migrate.ReasonSizeExceeded),
	}))
	closeStore()

	require.NoError(t, execute(t, "run", "--config", configPath, "--kind", "specbook_item", "--dry-run"))
	require.NoError(t, execute(t, "retry", "--config", configPath, "--kind", "specbook_item", "--dry-run"))

	l, closeStore = openLedger()
	defer closeStore()

	kind, err := record.DefaultRegistry().Lookup("specbook_item")
	require.NoError(t, err)
	work, err := migrate.Retargets(l, kind, migrate.DefaultRetryPolicy())
	require.NoError(t, err)
	assert.Equal(t, migrate.Items(kind, []record.Key{"1"}), work)

	latest, err := l.LatestFor("specbook_items", "1")
	require.NoError(t, err)
	assert.Equal(t, "earlier-pass", latest.PassID)
}

func TestSetupErrors(t *testing.T) {
	configPath, _ := writeFixture(t)

	err := execute(t, "run", "--config", configPath, "--kind", "specbook_item")
	assert.Error(t, err, "cloud settings are required outside dry-run")

	err = execute(t, "run", "--config", configPath, "--kind", "nope", "--dry-run")
	assert.Error(t, err)

	err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--kind", "specbook_item")
	assert.Error(t, err)
}
