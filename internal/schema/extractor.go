package schema

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ardaguler/kvmigrate/internal/database"
	"github.com/ardaguler/kvmigrate/pkg/logger"
)

// ErrSchemaUnavailable marks a destination whose catalog metadata could
// not be read. It is fatal: nothing is emitted without a trusted schema.
var ErrSchemaUnavailable = errors.New("destination schema unavailable")

type Extractor struct {
	conn   *database.Connection
	logger *logger.Logger
}

func NewExtractor(conn *database.Connection, logger *logger.Logger) *Extractor {
	return &Extractor{
		conn:   conn,
		logger: logger,
	}
}

// Extract mirrors every user table in the destination catalog. Filtering of
// bookkeeping tables is left to the callers so the model stays faithful.
func (e *Extractor) Extract() (*Model, error) {
	e.logger.Info("Reading destination schema...")

	rows, err := e.conn.DB.Query(
		`SELECT name, sql FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query sqlite_master: %v", ErrSchemaUnavailable, err)
	}
	defer rows.Close()

	model := NewModel()
	for rows.Next() {
		var table Table
		var createSQL sql.NullString
		if err := rows.Scan(&table.Name, &createSQL); err != nil {
			return nil, fmt.Errorf("%w: failed to read table metadata: %v", ErrSchemaUnavailable, err)
		}
		table.CreateSQL = createSQL.String
		model.Add(&table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate tables: %v", ErrSchemaUnavailable, err)
	}

	for _, name := range model.Names() {
		table := model.Table(name)
		if err := e.extractColumns(table); err != nil {
			return nil, fmt.Errorf("%w: table %s: %v", ErrSchemaUnavailable, name, err)
		}
		if err := e.extractForeignKeys(table); err != nil {
			return nil, fmt.Errorf("%w: table %s: %v", ErrSchemaUnavailable, name, err)
		}
		markAutoIncrement(table)
	}

	e.pruneDanglingForeignKeys(model)

	e.logger.Infof("%d tables mirrored from destination schema", len(model.Tables))
	return model, nil
}

func (e *Extractor) extractColumns(table *Table) error {
	rows, err := e.conn.DB.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table.Name)))
	if err != nil {
		return fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var col Column
		var pk int
		var defaultValue sql.NullString
		if err := rows.Scan(&col.Position, &col.Name, &col.DeclaredType, &col.NotNull, &defaultValue, &pk); err != nil {
			return fmt.Errorf("failed to read column metadata: %w", err)
		}

		col.Category = CategoryOf(col.DeclaredType)
		col.PrimaryKey = pk > 0
		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}

		table.Columns = append(table.Columns, col)
	}

	return rows.Err()
}

func (e *Extractor) extractForeignKeys(table *Table) error {
	rows, err := e.conn.DB.Query(fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table.Name)))
	if err != nil {
		return fmt.Errorf("failed to query foreign key metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fk ForeignKey
		var id, seq int
		var onUpdate, onDelete, match string
		var to sql.NullString
		err := rows.Scan(&id, &seq, &fk.ReferencedTable, &fk.ColumnName, &to, &onUpdate, &onDelete, &match)
		if err != nil {
			return fmt.Errorf("failed to read foreign key metadata: %w", err)
		}

		// An omitted referenced column means the parent's primary key.
		fk.ReferencedColumn = to.String
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}

	return rows.Err()
}

// markAutoIncrement flags primary keys whose values the migration will
// replace with surrogates. A single-column INTEGER primary key is a rowid
// alias in SQLite and behaves autoincrement-style whether or not the
// AUTOINCREMENT keyword appears in the creation SQL.
func markAutoIncrement(table *Table) {
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return
	}
	if pk.Category == CategoryInteger || strings.Contains(strings.ToUpper(table.CreateSQL), "AUTOINCREMENT") {
		pk.AutoIncrement = true
	}
}

// pruneDanglingForeignKeys drops constraints whose referenced table is not
// in the catalog. The schema is trusted but not assumed complete.
func (e *Extractor) pruneDanglingForeignKeys(model *Model) {
	for _, name := range model.Names() {
		table := model.Table(name)
		kept := table.ForeignKeys[:0]
		for _, fk := range table.ForeignKeys {
			if !model.Has(fk.ReferencedTable) {
				e.logger.Warnf("Ignoring foreign key %s.%s: referenced table %s is not in the schema",
					name, fk.ColumnName, fk.ReferencedTable)
				continue
			}
			kept = append(kept, fk)
		}
		table.ForeignKeys = kept
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
