package migrate

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ardaguler/kvmigrate/internal/catalog"
	"github.com/ardaguler/kvmigrate/internal/schema"
	"github.com/ardaguler/kvmigrate/pkg/logger"
)

// Field is one (column, literal) pair of a transformed row. SQL holds the
// fully rendered literal: NULL, a number, a quoted string, or a hex blob.
type Field struct {
	Column string
	SQL    string
}

// Row is an ordered, fully-typed record ready for serialization. Rows are
// ephemeral: produced per document and consumed by the emitter.
type Row struct {
	Table  string
	Fields []Field
}

// Transformer turns loosely-typed source documents into typed rows,
// assigning surrogate keys and rewriting foreign-key references through
// the registry.
type Transformer struct {
	model     *schema.Model
	registry  *Registry
	logger    *logger.Logger
	fallbacks int
}

func NewTransformer(model *schema.Model, registry *Registry, logger *logger.Logger) *Transformer {
	return &Transformer{
		model:    model,
		registry: registry,
		logger:   logger,
	}
}

// Fallbacks reports how many values could not be coerced to their declared
// category and were emitted as escaped text instead.
func (t *Transformer) Fallbacks() int {
	return t.fallbacks
}

// Transform produces a row for one document, or a skip describing why the
// record cannot be migrated. Foreign keys are resolved before the record's
// own surrogate is assigned, so a skipped record never leaves a hole in
// the surrogate sequence.
func (t *Transformer) Transform(table *schema.Table, doc catalog.Document) (*Row, *Skip) {
	pk := table.PrimaryKeyColumn()
	surrogatePK := pk != nil && pk.AutoIncrement

	var originalID string
	if surrogatePK {
		id, ok := originalKey(doc[pk.Name])
		if !ok {
			return nil, &Skip{Reason: SkipNoIdentifier, Table: table.Name}
		}
		originalID = id
	}

	resolved := make(map[string]string)
	var selfKeyed []string

	for i := range table.Columns {
		col := &table.Columns[i]
		if surrogatePK && col.Name == pk.Name {
			continue
		}
		fk := table.ForeignKeyFor(col.Name)
		if fk == nil {
			continue
		}

		value, ok := doc[col.Name]
		if !ok || value == nil {
			resolved[col.Name] = "NULL"
			continue
		}
		if !t.referencesSurrogate(fk) {
			// The parent keeps its natural key; pass the value through.
			resolved[col.Name] = t.coerce(table, col, value)
			continue
		}

		key, ok := originalKey(value)
		if !ok {
			return nil, &Skip{Reason: SkipMissingParent, Table: table.Name, OriginalID: originalID, Referenced: fk.ReferencedTable}
		}
		if fk.ReferencedTable == table.Name && key == originalID {
			// A row that is its own parent resolves to its own surrogate.
			selfKeyed = append(selfKeyed, col.Name)
			continue
		}
		mapped, found := t.registry.Lookup(fk.ReferencedTable, key)
		if !found {
			return nil, &Skip{Reason: SkipMissingParent, Table: table.Name, OriginalID: key, Referenced: fk.ReferencedTable}
		}
		resolved[col.Name] = strconv.FormatInt(mapped, 10)
	}

	var surrogate int64
	if surrogatePK {
		surrogate = t.registry.Assign(table.Name, originalID)
	}
	for _, column := range selfKeyed {
		resolved[column] = strconv.FormatInt(surrogate, 10)
	}

	row := &Row{Table: table.Name, Fields: make([]Field, 0, len(table.Columns))}
	for i := range table.Columns {
		col := &table.Columns[i]

		var literal string
		switch {
		case surrogatePK && col.Name == pk.Name:
			literal = strconv.FormatInt(surrogate, 10)
		default:
			if mapped, ok := resolved[col.Name]; ok {
				literal = mapped
				break
			}
			value, ok := doc[col.Name]
			if !ok || value == nil {
				literal = "NULL"
				break
			}
			literal = t.coerce(table, col, value)
		}

		row.Fields = append(row.Fields, Field{Column: col.Name, SQL: literal})
	}

	return row, nil
}

// referencesSurrogate reports whether a foreign key points at a column
// whose values this migration replaces with surrogates.
func (t *Transformer) referencesSurrogate(fk *schema.ForeignKey) bool {
	refTable := t.model.Table(fk.ReferencedTable)
	if refTable == nil {
		return false
	}
	refPK := refTable.PrimaryKeyColumn()
	if refPK == nil || !refPK.AutoIncrement {
		return false
	}
	return fk.ReferencedColumn == "" || fk.ReferencedColumn == refPK.Name
}

func (t *Transformer) coerce(table *schema.Table, col *schema.Column, value any) string {
	literal, fallback := coerceValue(value, col.Category)
	if fallback {
		t.fallbacks++
		t.logger.WithTable(table.Name).Warnf("Value for column %s does not fit %s, emitted as text", col.Name, col.Category)
	}
	return literal
}

// coerceValue renders a document value as a SQL literal for the declared
// category. The second return is true when the value could not be coerced
// and fell back to escaped text; nothing is ever silently dropped.
func coerceValue(value any, category schema.TypeCategory) (string, bool) {
	switch v := value.(type) {
	case bool:
		switch category {
		case schema.CategoryInteger, schema.CategoryReal, schema.CategoryNumeric:
			if v {
				return "1", false
			}
			return "0", false
		default:
			return quoteText(strconv.FormatBool(v)), false
		}

	case json.Number:
		switch category {
		case schema.CategoryInteger:
			if _, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
				return v.String(), false
			}
			return quoteText(v.String()), true
		case schema.CategoryReal, schema.CategoryNumeric, schema.CategoryBlob:
			return v.String(), false
		default:
			return quoteText(v.String()), false
		}

	case string:
		switch category {
		case schema.CategoryInteger:
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				return strconv.FormatInt(parsed, 10), false
			}
			return quoteText(v), true
		case schema.CategoryReal, schema.CategoryNumeric:
			if parsed, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(parsed, 0) && !math.IsNaN(parsed) {
				return strconv.FormatFloat(parsed, 'g', -1, 64), false
			}
			return quoteText(v), true
		case schema.CategoryBlob:
			return hexLiteral([]byte(v)), false
		default:
			return quoteText(v), false
		}

	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return quoteText(fmt.Sprint(v)), true
		}
		switch category {
		case schema.CategoryBlob:
			return hexLiteral(data), false
		case schema.CategoryText:
			return quoteText(string(data)), false
		default:
			return quoteText(string(data)), true
		}

	default:
		return quoteText(fmt.Sprint(value)), true
	}
}

// originalKey extracts the source-native identifier from a document value.
// Identifiers are compared as strings so numeric ids keep their exact
// source representation.
func originalKey(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// quoteText renders a string literal, doubling quote characters so raw
// document content can never alter statement structure.
func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func hexLiteral(data []byte) string {
	return "X'" + hex.EncodeToString(data) + "'"
}
