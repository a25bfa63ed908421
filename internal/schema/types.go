package schema

import (
	"sort"
	"strings"
)

// TypeCategory is the SQLite affinity bucket a declared column type
// resolves to. Coercion of loosely-typed document values is driven by it.
type TypeCategory int

const (
	CategoryInteger TypeCategory = iota
	CategoryReal
	CategoryText
	CategoryBlob
	CategoryNumeric
)

func (c TypeCategory) String() string {
	switch c {
	case CategoryInteger:
		return "INTEGER"
	case CategoryReal:
		return "REAL"
	case CategoryText:
		return "TEXT"
	case CategoryBlob:
		return "BLOB"
	default:
		return "NUMERIC"
	}
}

// CategoryOf applies the SQLite type-affinity rules to a declared type.
func CategoryOf(declaredType string) TypeCategory {
	t := strings.ToUpper(declaredType)
	switch {
	case strings.Contains(t, "INT"):
		return CategoryInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return CategoryText
	case t == "" || strings.Contains(t, "BLOB"):
		return CategoryBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return CategoryReal
	default:
		return CategoryNumeric
	}
}

type Column struct {
	Name          string
	DeclaredType  string
	Category      TypeCategory
	NotNull       bool
	DefaultValue  *string
	Position      int
	PrimaryKey    bool
	AutoIncrement bool
}

type ForeignKey struct {
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
}

type Table struct {
	Name        string
	CreateSQL   string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// PrimaryKeyColumn returns the table's primary key column when it is a
// single column, nil otherwise. Composite keys never take surrogates.
func (t *Table) PrimaryKeyColumn() *Column {
	var pk *Column
	for i := range t.Columns {
		if !t.Columns[i].PrimaryKey {
			continue
		}
		if pk != nil {
			return nil
		}
		pk = &t.Columns[i]
	}
	return pk
}

func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) ForeignKeyFor(column string) *ForeignKey {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].ColumnName == column {
			return &t.ForeignKeys[i]
		}
	}
	return nil
}

// Model is the in-memory mirror of the destination schema.
type Model struct {
	Tables map[string]*Table
}

func NewModel() *Model {
	return &Model{Tables: make(map[string]*Table)}
}

func (m *Model) Add(table *Table) {
	m.Tables[table.Name] = table
}

func (m *Model) Has(name string) bool {
	_, ok := m.Tables[name]
	return ok
}

func (m *Model) Table(name string) *Table {
	return m.Tables[name]
}

// Names returns table names in ascending lexical order.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relationship is one foreign-key edge, used by the inspect summary.
type Relationship struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// Relationships returns the foreign-key edges per table for reporting.
func (m *Model) Relationships() map[string][]Relationship {
	relationships := make(map[string][]Relationship)
	for name, table := range m.Tables {
		if len(table.ForeignKeys) == 0 {
			continue
		}
		for _, fk := range table.ForeignKeys {
			relationships[name] = append(relationships[name], Relationship{
				Column:           fk.ColumnName,
				ReferencedTable:  fk.ReferencedTable,
				ReferencedColumn: fk.ReferencedColumn,
			})
		}
	}
	return relationships
}
