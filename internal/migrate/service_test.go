package migrate_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ardaguler/kvmigrate/internal/config"
	"github.com/ardaguler/kvmigrate/internal/migrate"
	"github.com/ardaguler/kvmigrate/pkg/logger"
)

func createDB(t *testing.T, statements ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "database.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, statement := range statements {
		_, err := db.Exec(statement)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())
	return path
}

func writeExportFile(t *testing.T, root string, parts ...string) {
	t.Helper()

	content := parts[len(parts)-1]
	path := filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T, dbPath, exportRoot string) *config.Config {
	t.Helper()

	return &config.Config{
		DatabasePath: dbPath,
		ExportRoot:   exportRoot,
		OutputPath:   filepath.Join(t.TempDir(), "migrated_data.sql"),
		Tables: config.TablesConfig{
			Overrides:     map[string]string{"events": "event"},
			Chronological: map[string]string{"event": "created"},
		},
	}
}

func runService(t *testing.T, cfg *config.Config) (*migrate.Report, string) {
	t.Helper()

	report, err := migrate.NewService(cfg, logger.NewLogger(false), false).Run()
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	return report, string(data)
}

func TestServiceMigratesDependentTables(t *testing.T) {
	dbPath := createDB(t,
		`CREATE TABLE account (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
		`CREATE TABLE project_something (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, account_id INTEGER REFERENCES account(id))`,
	)
	root := t.TempDir()
	writeExportFile(t, root, "account", "0001.json", `{"id": "a1", "name": "Acme"}`)
	// The grouped directory name normalizes to project_something.
	writeExportFile(t, root, "project__something_0000000001", "0001.json", `{"id": "p1", "name": "Demo", "account_id": "a1"}`)

	report, output := runService(t, testConfig(t, dbPath, root))

	assert.Equal(t, []string{"account", "project_something"}, report.Order)
	assert.Equal(t, 1, report.Tables["account"].Emitted)
	assert.Equal(t, 1, report.Tables["project_something"].Emitted)

	assert.Contains(t, output, `INSERT INTO "account" ("id", "name") VALUES (1, 'Acme');`)
	assert.Contains(t, output, `INSERT INTO "project_something" ("id", "name", "account_id") VALUES (1, 'Demo', 1);`)
	assert.Less(t,
		strings.Index(output, `INSERT INTO "account"`),
		strings.Index(output, `INSERT INTO "project_something"`),
		"parents are inserted before their dependents")

	// Original identifiers never appear in the artifact.
	assert.NotContains(t, output, "a1")
	assert.NotContains(t, output, "p1")
}

func TestServiceSkipsRecordsWithMissingParents(t *testing.T) {
	dbPath := createDB(t,
		`CREATE TABLE account (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
		`CREATE TABLE project (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, account_id INTEGER REFERENCES account(id))`,
	)
	root := t.TempDir()
	writeExportFile(t, root, "account", "0001.json", `{"id": "a1", "name": "Acme"}`)
	writeExportFile(t, root, "project", "0001.json", `{"id": "p1", "name": "Demo", "account_id": "missing"}`)

	report, output := runService(t, testConfig(t, dbPath, root))

	project := report.Tables["project"]
	assert.Equal(t, 1, project.Discovered)
	assert.Equal(t, 0, project.Emitted)
	assert.Equal(t, 1, project.Skipped[migrate.SkipMissingParent])
	assert.NotContains(t, output, `INSERT INTO "project"`)
}

func TestServiceFailsOnMultiTableCycleWithoutArtifact(t *testing.T) {
	dbPath := createDB(t,
		`CREATE TABLE a (id INTEGER PRIMARY KEY AUTOINCREMENT, b_id INTEGER REFERENCES b(id))`,
		`CREATE TABLE b (id INTEGER PRIMARY KEY AUTOINCREMENT, a_id INTEGER REFERENCES a(id))`,
	)
	root := t.TempDir()
	writeExportFile(t, root, "a", "0001.json", `{"id": "a1"}`)
	writeExportFile(t, root, "b", "0001.json", `{"id": "b1"}`)

	cfg := testConfig(t, dbPath, root)
	_, err := migrate.NewService(cfg, logger.NewLogger(false), false).Run()
	require.Error(t, err)

	var cycle *migrate.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"a", "b"}, cycle.Tables)
	assert.NoFileExists(t, cfg.OutputPath, "a fatal run leaves no artifact behind")
}

func TestServiceSortsEventTableChronologically(t *testing.T) {
	dbPath := createDB(t,
		`CREATE TABLE event (id INTEGER PRIMARY KEY AUTOINCREMENT, description TEXT, created TEXT)`,
	)
	root := t.TempDir()
	// File discovery order (lexical) is the reverse of creation order.
	writeExportFile(t, root, "events", "a.json", `{"id": "e2", "description": "later", "created": "2024-05-01T10:00:00Z"}`)
	writeExportFile(t, root, "events", "z.json", `{"id": "e1", "description": "earlier", "created": "2024-01-01T10:00:00Z"}`)

	_, output := runService(t, testConfig(t, dbPath, root))

	assert.Contains(t, output, "-- SQL statements for table: event (sorted by created)")
	assert.Less(t,
		strings.Index(output, "'earlier'"),
		strings.Index(output, "'later'"),
		"event rows are emitted in ascending created order")
	assert.Contains(t, output, `VALUES (1, 'earlier', '2024-01-01T10:00:00Z');`)
	assert.Contains(t, output, `VALUES (2, 'later', '2024-05-01T10:00:00Z');`)
}

func TestServiceResolvesSelfReferencesWithDeferredPass(t *testing.T) {
	dbPath := createDB(t,
		`CREATE TABLE comment (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT, parent_id INTEGER REFERENCES comment(id))`,
	)
	root := t.TempDir()
	// The child is discovered before its parent.
	writeExportFile(t, root, "comment", "a.json", `{"id": "c2", "body": "child", "parent_id": "c1"}`)
	writeExportFile(t, root, "comment", "b.json", `{"id": "c1", "body": "root", "parent_id": null}`)

	report, output := runService(t, testConfig(t, dbPath, root))

	comment := report.Tables["comment"]
	assert.Equal(t, 2, comment.Emitted)
	assert.Empty(t, comment.Skipped)

	assert.Contains(t, output, `VALUES (1, 'root', NULL);`)
	assert.Contains(t, output, `VALUES (2, 'child', 1);`, "the deferred pass resolves the late parent")
}

func TestServiceTalliesMalformedDocuments(t *testing.T) {
	dbPath := createDB(t,
		`CREATE TABLE account (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
	)
	root := t.TempDir()
	writeExportFile(t, root, "account", "good.json", `{"id": "a1", "name": "Acme"}`)
	writeExportFile(t, root, "account", "bad.json", `{"id":`)

	report, _ := runService(t, testConfig(t, dbPath, root))

	account := report.Tables["account"]
	assert.Equal(t, 2, account.Files)
	assert.Equal(t, 1, account.Emitted)
	assert.Equal(t, 1, account.Skipped[migrate.SkipInvalidDocument])
}

func TestServiceOutputIsDeterministic(t *testing.T) {
	dbPath := createDB(t,
		`CREATE TABLE account (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
		`CREATE TABLE project (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, account_id INTEGER REFERENCES account(id))`,
	)
	root := t.TempDir()
	writeExportFile(t, root, "account", "0001.json", `{"id": "a1", "name": "Acme"}`)
	writeExportFile(t, root, "account", "0002.json", `{"id": "a2", "name": "Globex"}`)
	writeExportFile(t, root, "project", "0001.json", `{"id": "p1", "account_id": "a2"}`)

	_, first := runService(t, testConfig(t, dbPath, root))
	_, second := runService(t, testConfig(t, dbPath, root))

	assert.Equal(t, first, second, "two runs over the same input are byte-identical")
}
