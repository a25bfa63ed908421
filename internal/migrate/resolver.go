package migrate

import (
	"sort"

	"github.com/ardaguler/kvmigrate/internal/schema"
)

// Resolve orders the tables present in the source so that every table
// appears after the tables it references. Ties break by ascending lexical
// order, making the output reproducible across runs. Self-references are
// excluded from the ordering but reported back so the caller can run the
// deferred-resolution pass for those tables. A cycle among two or more
// distinct tables is fatal.
func Resolve(model *schema.Model, present []string) (order []string, selfReferential map[string]bool, err error) {
	inSource := make(map[string]bool, len(present))
	for _, table := range present {
		inSource[table] = true
	}

	selfReferential = make(map[string]bool)
	dependents := make(map[string][]string)
	indegree := make(map[string]int, len(present))

	for _, table := range present {
		indegree[table] += 0
		for _, fk := range model.Table(table).ForeignKeys {
			ref := fk.ReferencedTable
			if ref == table {
				selfReferential[table] = true
				continue
			}
			// Tables absent from the source contribute no constraint.
			if !inSource[ref] {
				continue
			}
			dependents[ref] = append(dependents[ref], table)
			indegree[table]++
		}
	}

	ready := make([]string, 0, len(present))
	for table, degree := range indegree {
		if degree == 0 {
			ready = append(ready, table)
		}
	}

	order = make([]string, 0, len(present))
	for len(ready) > 0 {
		sort.Strings(ready)
		table := ready[0]
		ready = ready[1:]
		order = append(order, table)

		for _, dependent := range dependents[table] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) < len(present) {
		cycle := &CycleError{}
		for table, degree := range indegree {
			if degree > 0 {
				cycle.Tables = append(cycle.Tables, table)
			}
		}
		sort.Strings(cycle.Tables)
		return nil, nil, cycle
	}

	return order, selfReferential, nil
}
