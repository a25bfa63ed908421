package migrate

import (
	"fmt"
	"sort"
)

// TableReport counts what happened to one table's source data.
type TableReport struct {
	Files      int
	Discovered int
	Emitted    int
	Skipped    map[SkipReason]int
}

func newTableReport() *TableReport {
	return &TableReport{Skipped: make(map[SkipReason]int)}
}

func (r *TableReport) skip(reason SkipReason) {
	r.Skipped[reason]++
}

func (r *TableReport) skippedTotal() int {
	total := 0
	for _, count := range r.Skipped {
		total += count
	}
	return total
}

// Report is the migration summary handed to the CLI.
type Report struct {
	Tables     map[string]*TableReport
	Order      []string
	OutputPath string
	Fallbacks  int
}

// Lines formats the summary, one line per table in lexical order.
func (r *Report) Lines() []string {
	names := make([]string, 0, len(r.Tables))
	for name := range r.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		table := r.Tables[name]
		line := fmt.Sprintf("%s: %d files, %d documents, %d rows emitted, %d skipped",
			name, table.Files, table.Discovered, table.Emitted, table.skippedTotal())

		reasons := make([]string, 0, len(table.Skipped))
		for reason, count := range table.Skipped {
			reasons = append(reasons, fmt.Sprintf("%s: %d", reason, count))
		}
		if len(reasons) > 0 {
			sort.Strings(reasons)
			line += fmt.Sprintf(" (%s)", joinReasons(reasons))
		}
		lines = append(lines, line)
	}
	return lines
}

func joinReasons(reasons []string) string {
	out := ""
	for i, reason := range reasons {
		if i > 0 {
			out += ", "
		}
		out += reason
	}
	return out
}
