package migrate

import (
	"fmt"
	"io"
	"strings"
)

// Emitter serializes transformed rows into the SQL artifact. The artifact
// clears every receiving table and resets its autoincrement bookkeeping
// before any insert, so re-applying the whole output is idempotent.
type Emitter struct {
	w   io.Writer
	err error
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes the full statement stream for the ordered tables and returns
// per-table counts of emitted inserts. Identical statements for a table
// are emitted once. Only surrogate keys appear in the output.
func (e *Emitter) Emit(order []string, rowsByTable map[string][]*Row, chronological map[string]string) (map[string]int, error) {
	var receiving []string
	for _, table := range order {
		if len(rowsByTable[table]) > 0 {
			receiving = append(receiving, table)
		}
	}

	if len(receiving) > 0 {
		e.writeLine("-- Clear existing data from tables before migration")
		for _, table := range receiving {
			e.writeLine("DELETE FROM %s;", quoteIdent(table))
		}
		e.writeLine("")
		e.writeLine("-- Reset autoincrement sequences")
		for _, table := range receiving {
			e.writeLine("DELETE FROM sqlite_sequence WHERE name=%s;", quoteText(table))
		}
	}

	emitted := make(map[string]int)
	for _, table := range receiving {
		marker := fmt.Sprintf("-- SQL statements for table: %s", table)
		if field, ok := chronological[table]; ok {
			marker += fmt.Sprintf(" (sorted by %s)", field)
		}
		e.writeLine("")
		e.writeLine("%s", marker)

		seen := make(map[string]bool)
		for _, row := range rowsByTable[table] {
			statement := insertStatement(row)
			if seen[statement] {
				continue
			}
			seen[statement] = true
			e.writeLine("%s", statement)
			emitted[table]++
		}
	}

	return emitted, e.err
}

func insertStatement(row *Row) string {
	columns := make([]string, len(row.Fields))
	values := make([]string, len(row.Fields))
	for i, field := range row.Fields {
		columns[i] = quoteIdent(field.Column)
		values[i] = field.SQL
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s);",
		quoteIdent(row.Table),
		strings.Join(columns, ", "),
		strings.Join(values, ", "),
	)
}

func (e *Emitter) writeLine(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format+"\n", args...)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
