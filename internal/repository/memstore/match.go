package memstore

import (
	"time"

	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/search"
)

// matchAll evaluates clauses the way the SQL compiler does. Callers hold
// s.mu for reading.
func (s *Store) matchAll(clauses []repository.Clause, t *domain.Ticket) (bool, error) {
	for _, c := range clauses {
		ok, err := s.match(c, t)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) match(c repository.Clause, t *domain.Ticket) (bool, error) {
	switch clause := c.(type) {
	case repository.Compare:
		return compare(clause, t)
	case repository.AnyOf:
		for _, inner := range clause {
			ok, err := s.match(inner, t)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case repository.ReplyContains:
		for _, r := range s.replies {
			if r.TicketID != t.ID || (r.IsInternal && !clause.IncludeInternal) {
				continue
			}
			if search.ContainsFold(r.Content, clause.Term) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, errors.Errorf("unsupported clause %T", c)
}

func textField(t *domain.Ticket, f repository.Field) (string, bool, error) {
	switch f {
	case repository.FieldID:
		return t.ID, true, nil
	case repository.FieldTitle:
		return t.Title, true, nil
	case repository.FieldDescription:
		return t.Description, true, nil
	case repository.FieldCategory:
		return string(t.Category), true, nil
	case repository.FieldPriority:
		return string(t.Priority), true, nil
	case repository.FieldStatus:
		return string(t.Status), true, nil
	case repository.FieldCustomerID:
		return t.CustomerID, true, nil
	case repository.FieldAssignedTo:
		if t.AssignedTo == nil {
			return "", false, nil
		}
		return *t.AssignedTo, true, nil
	}
	return "", false, errors.Errorf("field %q is not text", f)
}

func timeField(t *domain.Ticket, f repository.Field) (time.Time, error) {
	switch f {
	case repository.FieldCreatedAt:
		return t.CreatedAt, nil
	case repository.FieldLastActivity:
		return t.LastActivity, nil
	}
	return time.Time{}, errors.Errorf("field %q is not a timestamp", f)
}

func compare(c repository.Compare, t *domain.Ticket) (bool, error) {
	switch c.Op {
	case repository.OpGte, repository.OpLte:
		value, err := timeField(t, c.Field)
		if err != nil {
			return false, err
		}
		bound, ok := c.Value.(time.Time)
		if !ok {
			return false, errors.Errorf("field %q needs a time value", c.Field)
		}
		if c.Op == repository.OpGte {
			return !value.Before(bound), nil
		}
		return !value.After(bound), nil
	case repository.OpIsNull:
		_, present, err := textField(t, c.Field)
		return !present, err
	}

	value, present, err := textField(t, c.Field)
	if err != nil || !present {
		return false, err
	}
	switch c.Op {
	case repository.OpEq:
		want, ok := c.Value.(string)
		if !ok {
			return false, errors.Errorf("field %q needs a text value", c.Field)
		}
		return value == want, nil
	case repository.OpIn:
		values, ok := c.Value.([]string)
		if !ok {
			return false, errors.Errorf("field %q needs a list value", c.Field)
		}
		for _, v := range values {
			if v == value {
				return true, nil
			}
		}
		return false, nil
	case repository.OpContains:
		term, ok := c.Value.(string)
		if !ok {
			return false, errors.Errorf("field %q needs a text value", c.Field)
		}
		return search.ContainsFold(value, term), nil
	}
	return false, errors.Errorf("unsupported operator %q", c.Op)
}
