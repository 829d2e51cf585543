package introspection

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint groups per-column KEY_COLUMN_USAGE rows into one ordered mapping.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints returns the FK constraints of a table ordered by
// constraint name, columns ordered by their position in the constraint.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	fks := append([]ForeignKey(nil), table.ForeignKeys...)
	keys := make([]string, len(fks))
	for i, fk := range fks {
		keys[i] = fk.ConstraintName
		if keys[i] == "" {
			// unnamed rows never merge
			keys[i] = fmt.Sprintf("__unnamed_%d", i)
		}
	}
	idx := make([]int, len(fks))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka != kb {
			return ka < kb
		}
		return fks[idx[a]].OrdinalPosition < fks[idx[b]].OrdinalPosition
	})

	var result []ForeignKeyConstraint
	last := ""
	for _, i := range idx {
		fk := fks[i]
		if len(result) == 0 || keys[i] != last {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:  fk.ConstraintName,
				ReferencedTable: fk.ReferencedTable,
			})
			last = keys[i]
		}
		group := &result[len(result)-1]
		group.ColumnNames = append(group.ColumnNames, fk.ColumnName)
		group.ReferencedColumns = append(group.ReferencedColumns, fk.ReferencedColumn)
	}
	return result
}
