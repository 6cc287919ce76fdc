package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk/internal/domain"
)

var (
	admin    = domain.Principal{ID: "admin-1", Role: domain.RoleAdmin}
	owner    = domain.Principal{ID: "cust-1", Role: domain.RoleCustomer}
	stranger = domain.Principal{ID: "cust-2", Role: domain.RoleCustomer}
)

func ticketWithStatus(status domain.TicketStatus) *domain.Ticket {
	return &domain.Ticket{ID: "t-1", CustomerID: "cust-1", Status: status}
}

func TestCanView(t *testing.T) {
	ticket := ticketWithStatus(domain.TicketStatusOpen)

	assert.True(t, CanView(admin, ticket))
	assert.True(t, CanView(owner, ticket))
	assert.False(t, CanView(stranger, ticket))
	assert.False(t, CanView(domain.Principal{Role: domain.RoleCustomer}, &domain.Ticket{}))
	assert.False(t, CanView(admin, nil))
}

func TestCanReply(t *testing.T) {
	tests := []struct {
		name      string
		principal domain.Principal
		status    domain.TicketStatus
		want      bool
	}{
		{name: "owner on open", principal: owner, status: domain.TicketStatusOpen, want: true},
		{name: "owner on resolved", principal: owner, status: domain.TicketStatusResolved, want: true},
		{name: "owner on closed", principal: owner, status: domain.TicketStatusClosed, want: false},
		{name: "admin on in progress", principal: admin, status: domain.TicketStatusInProgress, want: true},
		{name: "admin on closed", principal: admin, status: domain.TicketStatusClosed, want: false},
		{name: "stranger on open", principal: stranger, status: domain.TicketStatusOpen, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanReply(tt.principal, ticketWithStatus(tt.status)))
		})
	}
}

func TestCanSeeReply(t *testing.T) {
	internal := &domain.TicketReply{ID: "r-1", AuthorID: "admin-1", IsInternal: true}
	public := &domain.TicketReply{ID: "r-2", AuthorID: "admin-1"}

	for _, customer := range []domain.Principal{owner, stranger} {
		assert.False(t, CanSeeReply(customer, internal), customer.ID)
		assert.True(t, CanSeeReply(customer, public), customer.ID)
	}
	assert.True(t, CanSeeReply(admin, internal))
	assert.True(t, CanSeeReply(admin, public))
}

func TestRoleGates(t *testing.T) {
	assert.True(t, CanAssign(admin))
	assert.False(t, CanAssign(owner))
	assert.True(t, CanSetStatus(admin))
	assert.False(t, CanSetStatus(owner))
	assert.True(t, CanCreate(owner))
	assert.False(t, CanCreate(admin))
	assert.True(t, CanSeeAudit(admin))
	assert.False(t, CanSeeAudit(owner))
}

func TestScopeCustomerID(t *testing.T) {
	assert.Nil(t, ScopeCustomerID(admin))
	scope := ScopeCustomerID(owner)
	if assert.NotNil(t, scope) {
		assert.Equal(t, "cust-1", *scope)
	}
}

func TestVisibleReplies(t *testing.T) {
	replies := []domain.TicketReply{
		{ID: "r-1", IsInternal: true},
		{ID: "r-2"},
		{ID: "r-3", IsInternal: true},
	}

	assert.Len(t, VisibleReplies(admin, replies), 3)
	visible := VisibleReplies(owner, replies)
	assert.Len(t, visible, 1)
	assert.Equal(t, "r-2", visible[0].ID)
}
