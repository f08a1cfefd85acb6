// Package database builds parameterized SELECT statements with sanitized identifiers.
package database

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Op is a comparison operator for a WHERE condition.
type Op string

const (
	Equal       Op = "="
	NotEqual    Op = "!="
	GreaterThan Op = ">"
	LessThan    Op = "<"
	ILike       Op = "ILIKE"
	Any         Op = "ANY"
)

type condition struct {
	column string
	op     Op
	value  any
}

// OrderTerm is one ORDER BY component.
type OrderTerm struct {
	Column string
	Desc   bool
	// Lower orders by lower(column).
	Lower bool
	// Collate, when set, applies a COLLATE clause, e.g. "C" for byte order.
	Collate string
}

// Query is a SELECT under construction. The zero limit means no LIMIT clause.
type Query struct {
	table   string
	columns []string
	conds   []condition
	order   []OrderTerm
	limit   int
}

// Select starts a query on table. No columns selects *.
func Select(table string, columns ...string) *Query {
	return &Query{table: table, columns: columns}
}

// Where adds an AND-ed condition. Any expects a slice value.
func (q *Query) Where(column string, op Op, value any) *Query {
	q.conds = append(q.conds, condition{column: column, op: op, value: value})
	return q
}

// OrderBy appends ordering terms.
func (q *Query) OrderBy(terms ...OrderTerm) *Query {
	q.order = append(q.order, terms...)
	return q
}

// Limit caps the number of rows; values <= 0 remove the cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Build renders the SQL text and its positional arguments.
func (q *Query) Build() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(q.columns) == 0 {
		b.WriteString("*")
	} else {
		cols := make([]string, len(q.columns))
		for i, c := range q.columns {
			cols[i] = ident(c)
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(ident(q.table))

	args := make([]any, 0, len(q.conds)+1)
	for i, c := range q.conds {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, c.value)
		if c.op == Any {
			fmt.Fprintf(&b, "%s = ANY($%d)", ident(c.column), len(args))
			continue
		}
		fmt.Fprintf(&b, "%s %s $%d", ident(c.column), c.op, len(args))
	}

	for i, t := range q.order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		expr := ident(t.Column)
		if t.Lower {
			expr = "lower(" + expr + ")"
		}
		b.WriteString(expr)
		if t.Collate != "" {
			b.WriteString(" COLLATE ")
			b.WriteString(pgx.Identifier{t.Collate}.Sanitize())
		}
		if t.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	if q.limit > 0 {
		args = append(args, q.limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// ident quotes a possibly qualified identifier like "table.column".
func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
