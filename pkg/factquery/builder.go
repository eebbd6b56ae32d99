// Package factquery builds parameterized SQL predicates for fact-table queries.
// Values never reach the SQL text; every value becomes a positional placeholder.
package factquery

import (
	"fmt"
	"strings"
	"time"
)

// Builder accumulates predicates and their arguments. Placeholders are numbered in
// the order arguments are added, so build JOIN conditions and WHERE clauses from
// the same Builder. The zero value is ready to use.
type Builder struct {
	conds []string
	args  []any
}

// Arg registers v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Where adds a raw predicate. Use Arg for any value it references.
func (b *Builder) Where(cond string) {
	b.conds = append(b.conds, cond)
}

// In restricts column to values, comparing case-insensitively. Blank and repeated
// values are dropped; an empty list adds nothing.
func (b *Builder) In(column string, values []string) {
	lower := Normalize(values)
	if len(lower) == 0 {
		return
	}
	b.Where(fmt.Sprintf("LOWER(%s) = ANY(%s)", column, b.Arg(lower)))
}

// Search matches term as a substring of any of columns.
func (b *Builder) Search(columns []string, term string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	ph := b.Arg("%" + escapeLike(term) + "%")
	ors := make([]string, len(columns))
	for i, c := range columns {
		ors[i] = fmt.Sprintf("%s ILIKE %s", c, ph)
	}
	b.Where("(" + strings.Join(ors, " OR ") + ")")
}

// Between restricts a date column to [from, to]. Either bound may be nil.
func (b *Builder) Between(column string, from, to *time.Time) {
	if from != nil {
		b.Where(fmt.Sprintf("%s >= %s", column, b.Arg(*from)))
	}
	if to != nil {
		b.Where(fmt.Sprintf("%s <= %s", column, b.Arg(*to)))
	}
}

// Clause returns "WHERE ..." or an empty string when no predicate was added.
func (b *Builder) Clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conds, " AND ")
}

// Args returns the arguments in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// Normalize trims, lowercases and drops blank and repeated values, keeping
// first-seen order.
func Normalize(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
