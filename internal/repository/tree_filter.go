package repository

import (
	"strings"
	"time"
)

// TreeFilter describes a declarative selection over the trees table.  It
// is built from request parameters by the handlers and translated into a
// WHERE clause here; it never executes anything itself.  The zero value
// selects all active trees.
type TreeFilter struct {
	ForestIDs     []uint64   // restrict to these forests
	Species       string     // case-insensitive exact species match
	IsAlive       *bool      // liveness flag, nil = any
	PlantedAfter  *time.Time // planted_at >= this date
	PlantedBefore *time.Time // planted_at <= this date
	IncludeDead   bool       // when false, is_active=1 is always applied
}

// IsZero reports whether the filter carries no selection criteria at all.
func (f TreeFilter) IsZero() bool {
	return len(f.ForestIDs) == 0 && f.Species == "" && f.IsAlive == nil &&
		f.PlantedAfter == nil && f.PlantedBefore == nil
}

// Where renders the filter into a SQL condition string and its argument
// list.  The returned condition never starts with WHERE; callers splice
// it into their own statements.  Placeholders use the MySQL `?` style.
func (f TreeFilter) Where() (string, []interface{}) {
	conds := []string{}
	args := []interface{}{}
	if !f.IncludeDead {
		conds = append(conds, "is_active = 1")
	}
	if len(f.ForestIDs) > 0 {
		conds = append(conds, "forest_id IN ("+placeholders(len(f.ForestIDs))+")")
		for _, id := range f.ForestIDs {
			args = append(args, id)
		}
	}
	if f.Species != "" {
		// LOWER on both sides keeps the match case-insensitive regardless
		// of the column collation.
		conds = append(conds, "LOWER(species) = LOWER(?)")
		args = append(args, f.Species)
	}
	if f.IsAlive != nil {
		conds = append(conds, "is_alive = ?")
		args = append(args, *f.IsAlive)
	}
	if f.PlantedAfter != nil {
		conds = append(conds, "planted_at >= ?")
		args = append(args, *f.PlantedAfter)
	}
	if f.PlantedBefore != nil {
		conds = append(conds, "planted_at <= ?")
		args = append(args, *f.PlantedBefore)
	}
	if len(conds) == 0 {
		return "1=1", args
	}
	return strings.Join(conds, " AND "), args
}

// placeholders returns n comma-separated `?` markers for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
