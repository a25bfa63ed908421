package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ardaguler/kvmigrate/internal/schema"
	"github.com/ardaguler/kvmigrate/pkg/logger"
)

// ErrInvalidDocument marks a single export file that could not be parsed.
// It never aborts the run; the file is skipped and tallied.
var ErrInvalidDocument = errors.New("invalid document format")

// Export directories follow <table>__<relation>_<digits>; the numeric
// suffix is a source-side ordering artifact and carries no meaning here.
var groupDirPattern = regexp.MustCompile(`^(.+?)__(.+)_([0-9]+)$`)

// excludedTables are destination-internal bookkeeping tables that are
// never populated from source data, regardless of overrides.
var excludedTables = map[string]bool{
	"migrations": true,
	"session":    true,
}

// Document is one parsed source record. Numbers are kept as json.Number
// so identifiers and literals survive with their exact representation.
type Document map[string]any

// RecordGroup collects every source document destined for one table.
type RecordGroup struct {
	Table     string
	Documents []Document
	Files     int
	Invalid   int
}

// Catalog maps destination table names to their source record groups.
type Catalog struct {
	Groups map[string]*RecordGroup
}

// Tables returns the tables that have source data, lexically sorted.
func (c *Catalog) Tables() []string {
	tables := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// ResolveTableName normalizes one export directory name to its candidate
// destination table. Overrides take precedence over verbatim names but not
// over the grouped-directory pattern.
func ResolveTableName(dirName string, overrides map[string]string) string {
	if m := groupDirPattern.FindStringSubmatch(dirName); m != nil {
		return m[1] + "_" + m[2]
	}
	if override, ok := overrides[dirName]; ok {
		return override
	}
	return dirName
}

// Discover walks the export root and builds the record groups. Directories
// are visited in lexical order, so several directories resolving to the
// same table concatenate their documents deterministically.
func Discover(exportRoot string, model *schema.Model, overrides map[string]string, log *logger.Logger) (*Catalog, error) {
	entries, err := os.ReadDir(exportRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory %s: %w", exportRoot, err)
	}

	catalog := &Catalog{Groups: make(map[string]*RecordGroup)}

	for _, entry := range entries {
		if entry.IsDir() {
			tableName := ResolveTableName(entry.Name(), overrides)
			group := catalog.group(tableName, entry.Name(), model, log)
			if group == nil {
				continue
			}
			if err := readGroupDir(filepath.Join(exportRoot, entry.Name()), group, log); err != nil {
				return nil, err
			}
			continue
		}

		// A loose JSON file at the root feeds the table named after it.
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		tableName := strings.TrimSuffix(entry.Name(), ".json")
		group := catalog.group(tableName, entry.Name(), model, log)
		if group == nil {
			continue
		}
		readDocumentFile(filepath.Join(exportRoot, entry.Name()), group, log)
	}

	// Groups that discovered no documents at all contribute nothing.
	for name, group := range catalog.Groups {
		if group.Files == 0 {
			delete(catalog.Groups, name)
		}
	}

	return catalog, nil
}

// group resolves the destination group for a source entry, applying the
// unconditional exclusions and the unknown-table warning.
func (c *Catalog) group(tableName, sourceName string, model *schema.Model, log *logger.Logger) *RecordGroup {
	if excludedTables[tableName] {
		log.Debugf("Skipping bookkeeping table %s (source %s)", tableName, sourceName)
		return nil
	}
	if !model.Has(tableName) {
		log.Warnf("Source %s resolves to table %s which is not in the schema, skipping", sourceName, tableName)
		return nil
	}

	group, ok := c.Groups[tableName]
	if !ok {
		group = &RecordGroup{Table: tableName}
		c.Groups[tableName] = group
	}
	return group
}

func readGroupDir(dir string, group *RecordGroup, log *logger.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read source directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		readDocumentFile(filepath.Join(dir, entry.Name()), group, log)
	}

	return nil
}

// readDocumentFile parses one export file. A file may hold a single
// document or an array of documents; a malformed file is skipped.
func readDocumentFile(path string, group *RecordGroup, log *logger.Logger) {
	group.Files++

	docs, err := parseDocuments(path)
	if err != nil {
		group.Invalid++
		log.Warnf("%v", err)
		return
	}

	group.Documents = append(group.Documents, docs...)
}

func parseDocuments(path string) ([]Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, path, err)
	}

	switch value := raw.(type) {
	case map[string]any:
		return []Document{Document(value)}, nil
	case []any:
		docs := make([]Document, 0, len(value))
		for _, item := range value {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s: array element is not an object", ErrInvalidDocument, path)
			}
			docs = append(docs, Document(doc))
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("%w: %s: top-level value is not an object or array", ErrInvalidDocument, path)
	}
}
