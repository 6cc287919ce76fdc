// Package workflow holds the ticket status state machine. Transition
// functions are pure: they take the current state and return the next state
// plus the events describing what changed, leaving persistence to the caller.
package workflow

import (
	"errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

var (
	ErrTicketClosed   = errors.New("ticket is closed")
	ErrUnknownStatus  = errors.New("unknown status")
	ErrNoopTransition = errors.New("ticket already has this status")
	ErrNoAssignee     = errors.New("ticket must be assigned before it can be in progress")
	ErrNotAllowed     = errors.New("status transition not allowed")
)

// State is the mutable part of a ticket the state machine cares about.
type State struct {
	Status     domain.TicketStatus
	AssignedTo *string
}

// StateOf extracts the workflow state of a ticket.
func StateOf(ticket *domain.Ticket) State {
	return State{Status: ticket.Status, AssignedTo: ticket.AssignedTo}
}

// Apply copies state onto the ticket.
func (s State) Apply(ticket *domain.Ticket) {
	ticket.Status = s.Status
	ticket.AssignedTo = s.AssignedTo
}

func (s State) assigned() bool {
	return s.AssignedTo != nil && *s.AssignedTo != ""
}

// EventType enumerates what a transition changed.
type EventType string

const (
	EventStatusChanged   EventType = "STATUS_CHANGED"
	EventAssigneeChanged EventType = "ASSIGNEE_CHANGED"
)

// Event describes one change produced by a transition.
type Event struct {
	Type         EventType
	FromStatus   domain.TicketStatus
	ToStatus     domain.TicketStatus
	FromAssignee *string
	ToAssignee   *string
}

// Outcome is the result of a transition function.
type Outcome struct {
	State  State
	Events []Event
}

// StatusChange returns the status event of the outcome, if any.
func (o Outcome) StatusChange() (Event, bool) {
	for _, ev := range o.Events {
		if ev.Type == EventStatusChanged {
			return ev, true
		}
	}
	return Event{}, false
}

// AssigneeChange returns the assignment event of the outcome, if any.
func (o Outcome) AssigneeChange() (Event, bool) {
	for _, ev := range o.Events {
		if ev.Type == EventAssigneeChanged {
			return ev, true
		}
	}
	return Event{}, false
}

// edges is the complete set of status transitions. Closed is terminal.
var edges = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusResolved:   {domain.TicketStatusOpen, domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {},
}

// IsEdge reports whether from→to is an allowed transition.
func IsEdge(from, to domain.TicketStatus) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Reply computes the side effect of a new reply. A customer answering a
// resolved ticket reopens it; an admin's public answer on an open ticket
// moves it to in progress. At most one of the two applies.
func Reply(state State, author domain.Role, internal bool) (Outcome, error) {
	if state.Status == domain.TicketStatusClosed {
		return Outcome{State: state}, ErrTicketClosed
	}
	switch {
	case author == domain.RoleCustomer && state.Status == domain.TicketStatusResolved:
		return moveTo(state, domain.TicketStatusOpen), nil
	case author == domain.RoleAdmin && !internal && state.Status == domain.TicketStatusOpen:
		return moveTo(state, domain.TicketStatusInProgress), nil
	}
	return Outcome{State: state}, nil
}

// Assign sets or clears the assignee. The assignment event is always
// emitted; assigning someone to an open ticket also starts work on it.
func Assign(state State, assignee *string) (Outcome, error) {
	if state.Status == domain.TicketStatusClosed {
		return Outcome{State: state}, ErrTicketClosed
	}
	next := state
	next.AssignedTo = cloneID(assignee)
	out := Outcome{
		State: next,
		Events: []Event{{
			Type:         EventAssigneeChanged,
			FromStatus:   state.Status,
			ToStatus:     state.Status,
			FromAssignee: cloneID(state.AssignedTo),
			ToAssignee:   cloneID(assignee),
		}},
	}
	if next.assigned() && state.Status == domain.TicketStatusOpen {
		moved := moveTo(next, domain.TicketStatusInProgress)
		out.State = moved.State
		out.Events = append(out.Events, moved.Events...)
	}
	return out, nil
}

// SetStatus is an explicit status change requested by an admin.
func SetStatus(state State, to domain.TicketStatus) (Outcome, error) {
	if !to.Valid() {
		return Outcome{State: state}, ErrUnknownStatus
	}
	if state.Status == domain.TicketStatusClosed {
		return Outcome{State: state}, ErrTicketClosed
	}
	if state.Status == to {
		return Outcome{State: state}, ErrNoopTransition
	}
	if to == domain.TicketStatusInProgress && !state.assigned() {
		return Outcome{State: state}, ErrNoAssignee
	}
	if !IsEdge(state.Status, to) {
		return Outcome{State: state}, ErrNotAllowed
	}
	return moveTo(state, to), nil
}

func moveTo(state State, to domain.TicketStatus) Outcome {
	next := state
	next.Status = to
	return Outcome{
		State: next,
		Events: []Event{{
			Type:         EventStatusChanged,
			FromStatus:   state.Status,
			ToStatus:     to,
			FromAssignee: cloneID(state.AssignedTo),
			ToAssignee:   cloneID(state.AssignedTo),
		}},
	}
}

func cloneID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := *id
	return &v
}
