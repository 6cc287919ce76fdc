package repository

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Field names a filterable ticket attribute.
type Field string

const (
	FieldID           Field = "id"
	FieldTitle        Field = "title"
	FieldDescription  Field = "description"
	FieldCategory     Field = "category"
	FieldPriority     Field = "priority"
	FieldStatus       Field = "status"
	FieldCustomerID   Field = "customer_id"
	FieldAssignedTo   Field = "assigned_to"
	FieldCreatedAt    Field = "created_at"
	FieldLastActivity Field = "last_activity"
)

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpGte      Op = "gte"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
	OpIsNull   Op = "is_null"
)

// Clause is one typed filter condition. A TicketQuery ANDs its clauses.
type Clause interface {
	clause()
}

// Compare tests a single field. Value is a string for text and enum fields,
// a time.Time for timestamps, a []string for OpIn and unused for OpIsNull.
type Compare struct {
	Field Field
	Op    Op
	Value any
}

// AnyOf matches when at least one of its clauses matches.
type AnyOf []Clause

// ReplyContains matches tickets with a reply whose content contains Term
// ignoring case. Internal notes only count when IncludeInternal is set.
type ReplyContains struct {
	Term            string
	IncludeInternal bool
}

func (Compare) clause()       {}
func (AnyOf) clause()         {}
func (ReplyContains) clause() {}

func Eq(field Field, value string) Clause {
	return Compare{Field: field, Op: OpEq, Value: value}
}

func In(field Field, values ...string) Clause {
	return Compare{Field: field, Op: OpIn, Value: values}
}

func Contains(field Field, term string) Clause {
	return Compare{Field: field, Op: OpContains, Value: term}
}

func IsNull(field Field) Clause {
	return Compare{Field: field, Op: OpIsNull}
}

func OnOrAfter(field Field, t time.Time) Clause {
	return Compare{Field: field, Op: OpGte, Value: t}
}

func OnOrBefore(field Field, t time.Time) Clause {
	return Compare{Field: field, Op: OpLte, Value: t}
}

func Or(clauses ...Clause) Clause {
	return AnyOf(clauses)
}

// TicketQuery selects tickets matching every clause, newest activity first.
// A zero Limit returns all matches.
type TicketQuery struct {
	Where []Clause
	Limit int
}

// And returns a copy of q with extra clauses appended.
func (q TicketQuery) And(clauses ...Clause) TicketQuery {
	where := make([]Clause, 0, len(q.Where)+len(clauses))
	where = append(where, q.Where...)
	where = append(where, clauses...)
	q.Where = where
	return q
}

// ReplyQuery selects replies of the given tickets, oldest first.
type ReplyQuery struct {
	TicketIDs       []string
	ContentContains string
	IncludeInternal bool
}

// UserQuery selects reference users ordered by name.
type UserQuery struct {
	Role                *domain.Role
	NameOrEmailContains string
	Limit               int
}
