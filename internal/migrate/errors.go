package migrate

import (
	"fmt"
	"sort"
	"strings"
)

// SkipReason classifies why a single record was left out of the artifact.
// Skips are recovered locally and tallied; they never abort the run.
type SkipReason string

const (
	SkipMissingParent   SkipReason = "missing referenced parent"
	SkipNoIdentifier    SkipReason = "no identifier"
	SkipInvalidDocument SkipReason = "invalid document"
)

// Skip describes one skipped record.
type Skip struct {
	Reason     SkipReason
	Table      string
	OriginalID string
	// Referenced names the parent table for missing-parent skips.
	Referenced string
}

// CycleError reports a foreign-key cycle among two or more distinct
// tables. It is fatal: no partial insertion is attempted under cycles.
type CycleError struct {
	Tables []string
}

func (e *CycleError) Error() string {
	tables := append([]string(nil), e.Tables...)
	sort.Strings(tables)
	return fmt.Sprintf("cyclic foreign-key dependency among tables: %s", strings.Join(tables, ", "))
}
