package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketStatuses lists statuses in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Label returns the human readable status name.
func (s TicketStatus) Label() string {
	switch s {
	case TicketStatusOpen:
		return "Open"
	case TicketStatusInProgress:
		return "In Progress"
	case TicketStatusResolved:
		return "Resolved"
	case TicketStatusClosed:
		return "Closed"
	}
	return string(s)
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketPriorities lists priorities from least to most urgent.
var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	for _, candidate := range TicketPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Label returns the human readable priority name.
func (p TicketPriority) Label() string {
	switch p {
	case TicketPriorityLow:
		return "Low"
	case TicketPriorityMedium:
		return "Medium"
	case TicketPriorityHigh:
		return "High"
	case TicketPriorityUrgent:
		return "Urgent"
	}
	return string(p)
}

// TicketCategory classifies the subject of a ticket.
type TicketCategory string

const (
	TicketCategoryTechnical TicketCategory = "TECHNICAL"
	TicketCategoryBilling   TicketCategory = "BILLING"
	TicketCategoryGeneral   TicketCategory = "GENERAL"
)

// TicketCategories lists all categories.
var TicketCategories = []TicketCategory{
	TicketCategoryTechnical,
	TicketCategoryBilling,
	TicketCategoryGeneral,
}

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	for _, candidate := range TicketCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// Label returns the human readable category name.
func (c TicketCategory) Label() string {
	switch c {
	case TicketCategoryTechnical:
		return "Technical"
	case TicketCategoryBilling:
		return "Billing"
	case TicketCategoryGeneral:
		return "General"
	}
	return string(c)
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	Title        string
	Description  string
	Category     TicketCategory
	Priority     TicketPriority
	Status       TicketStatus
	CustomerID   string
	AssignedTo   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActivity time.Time
}

// IsAssigned reports whether an admin currently owns the ticket.
func (t *Ticket) IsAssigned() bool {
	return t.AssignedTo != nil && *t.AssignedTo != ""
}
