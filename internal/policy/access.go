// Package policy answers whether a principal may view, reply to or modify
// helpdesk entities. Every function is a pure predicate.
package policy

import "github.com/spec-kit/helpdesk/internal/domain"

// CanView reports whether the principal may read the ticket.
func CanView(p domain.Principal, ticket *domain.Ticket) bool {
	if ticket == nil {
		return false
	}
	return p.IsAdmin() || (p.ID != "" && ticket.CustomerID == p.ID)
}

// CanReply reports whether the principal may post to the ticket thread.
func CanReply(p domain.Principal, ticket *domain.Ticket) bool {
	return CanView(p, ticket) && ticket.Status != domain.TicketStatusClosed
}

// CanSeeReply hides internal notes from everyone but admins, including the
// ticket owner.
func CanSeeReply(p domain.Principal, reply *domain.TicketReply) bool {
	if reply == nil {
		return false
	}
	return !reply.IsInternal || p.IsAdmin()
}

func CanAssign(p domain.Principal) bool {
	return p.IsAdmin()
}

func CanSetStatus(p domain.Principal) bool {
	return p.IsAdmin()
}

func CanCreate(p domain.Principal) bool {
	return p.IsCustomer() && p.ID != ""
}

func CanSeeAudit(p domain.Principal) bool {
	return p.IsAdmin()
}

// CanWriteInternal reports whether replies by p may be flagged internal.
func CanWriteInternal(p domain.Principal) bool {
	return p.IsAdmin()
}

// ScopeCustomerID returns the customer id every read by p must be restricted
// to, or nil when p may read all tickets.
func ScopeCustomerID(p domain.Principal) *string {
	if p.IsAdmin() {
		return nil
	}
	id := p.ID
	return &id
}

// VisibleReplies filters replies down to the ones p may read.
func VisibleReplies(p domain.Principal, replies []domain.TicketReply) []domain.TicketReply {
	visible := make([]domain.TicketReply, 0, len(replies))
	for i := range replies {
		if CanSeeReply(p, &replies[i]) {
			visible = append(visible, replies[i])
		}
	}
	return visible
}
