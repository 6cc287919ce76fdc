package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ticketColumns = map[Field]string{
	FieldID:           "t.id",
	FieldTitle:        "t.title",
	FieldDescription:  "t.description",
	FieldCategory:     "t.category",
	FieldPriority:     "t.priority",
	FieldStatus:       "t.status",
	FieldCustomerID:   "t.customer_id",
	FieldAssignedTo:   "t.assigned_to",
	FieldCreatedAt:    "t.created_at",
	FieldLastActivity: "t.last_activity",
}

// sqlFilter compiles typed clauses into a parametrized WHERE expression.
type sqlFilter struct {
	args []any
}

func (f *sqlFilter) bind(v any) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

func (f *sqlFilter) where(clauses []Clause) (string, error) {
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		expr, err := f.compile(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, " AND "), nil
}

func (f *sqlFilter) compile(c Clause) (string, error) {
	switch clause := c.(type) {
	case Compare:
		return f.compare(clause)
	case AnyOf:
		if len(clause) == 0 {
			return "FALSE", nil
		}
		parts := make([]string, 0, len(clause))
		for _, inner := range clause {
			expr, err := f.compile(inner)
			if err != nil {
				return "", err
			}
			parts = append(parts, expr)
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case ReplyContains:
		expr := fmt.Sprintf("EXISTS (SELECT 1 FROM ticket_replies r WHERE r.ticket_id = t.id AND r.content ILIKE %s ESCAPE '\\'", f.bind(likePattern(clause.Term)))
		if !clause.IncludeInternal {
			expr += " AND NOT r.is_internal"
		}
		return expr + ")", nil
	}
	return "", errors.Errorf("unsupported clause %T", c)
}

func (f *sqlFilter) compare(c Compare) (string, error) {
	column, ok := ticketColumns[c.Field]
	if !ok {
		return "", errors.Errorf("unknown field %q", c.Field)
	}
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%s = %s", column, f.bind(c.Value)), nil
	case OpGte, OpLte:
		ts, ok := c.Value.(time.Time)
		if !ok {
			return "", errors.Errorf("field %q needs a time value", c.Field)
		}
		op := ">="
		if c.Op == OpLte {
			op = "<="
		}
		return fmt.Sprintf("%s %s %s", column, op, f.bind(ts)), nil
	case OpIn:
		values, ok := c.Value.([]string)
		if !ok {
			return "", errors.Errorf("field %q needs a list value", c.Field)
		}
		if len(values) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s = ANY(%s)", column, f.bind(values)), nil
	case OpContains:
		term, ok := c.Value.(string)
		if !ok {
			return "", errors.Errorf("field %q needs a text value", c.Field)
		}
		return fmt.Sprintf("%s ILIKE %s ESCAPE '\\'", column, f.bind(likePattern(term))), nil
	case OpIsNull:
		return column + " IS NULL", nil
	}
	return "", errors.Errorf("unsupported operator %q", c.Op)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
