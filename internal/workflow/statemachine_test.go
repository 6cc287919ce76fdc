package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestIsEdge(t *testing.T) {
	allowed := [][2]domain.TicketStatus{
		{domain.TicketStatusOpen, domain.TicketStatusInProgress},
		{domain.TicketStatusInProgress, domain.TicketStatusResolved},
		{domain.TicketStatusResolved, domain.TicketStatusOpen},
		{domain.TicketStatusOpen, domain.TicketStatusClosed},
		{domain.TicketStatusInProgress, domain.TicketStatusClosed},
		{domain.TicketStatusResolved, domain.TicketStatusClosed},
	}
	for _, from := range domain.TicketStatuses {
		for _, to := range domain.TicketStatuses {
			want := false
			for _, pair := range allowed {
				if pair[0] == from && pair[1] == to {
					want = true
				}
			}
			assert.Equal(t, want, IsEdge(from, to), "%s -> %s", from, to)
		}
	}
}

func TestReply(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.TicketStatus
		author   domain.Role
		internal bool
		want     domain.TicketStatus
		changed  bool
	}{
		{name: "customer reopens resolved", status: domain.TicketStatusResolved, author: domain.RoleCustomer, want: domain.TicketStatusOpen, changed: true},
		{name: "customer on open", status: domain.TicketStatusOpen, author: domain.RoleCustomer, want: domain.TicketStatusOpen},
		{name: "customer on in progress", status: domain.TicketStatusInProgress, author: domain.RoleCustomer, want: domain.TicketStatusInProgress},
		{name: "admin public on open", status: domain.TicketStatusOpen, author: domain.RoleAdmin, want: domain.TicketStatusInProgress, changed: true},
		{name: "admin internal on open", status: domain.TicketStatusOpen, author: domain.RoleAdmin, internal: true, want: domain.TicketStatusOpen},
		{name: "admin public on resolved", status: domain.TicketStatusResolved, author: domain.RoleAdmin, want: domain.TicketStatusResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Reply(State{Status: tt.status}, tt.author, tt.internal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.State.Status)
			ev, ok := out.StatusChange()
			assert.Equal(t, tt.changed, ok)
			if ok {
				assert.Equal(t, tt.status, ev.FromStatus)
				assert.Equal(t, tt.want, ev.ToStatus)
				assert.True(t, IsEdge(ev.FromStatus, ev.ToStatus))
			}
		})
	}
}

func TestReplyOnClosed(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleCustomer} {
		_, err := Reply(State{Status: domain.TicketStatusClosed}, role, false)
		assert.ErrorIs(t, err, ErrTicketClosed)
	}
}

func TestAssign(t *testing.T) {
	t.Run("assign on open starts work", func(t *testing.T) {
		out, err := Assign(State{Status: domain.TicketStatusOpen}, strPtr("admin-2"))
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusInProgress, out.State.Status)
		require.NotNil(t, out.State.AssignedTo)
		assert.Equal(t, "admin-2", *out.State.AssignedTo)
		require.Len(t, out.Events, 2)

		assignment, ok := out.AssigneeChange()
		require.True(t, ok)
		assert.Nil(t, assignment.FromAssignee)
		assert.Equal(t, "admin-2", *assignment.ToAssignee)

		status, ok := out.StatusChange()
		require.True(t, ok)
		assert.Equal(t, domain.TicketStatusOpen, status.FromStatus)
		assert.Equal(t, domain.TicketStatusInProgress, status.ToStatus)
	})

	t.Run("reassign in progress keeps status", func(t *testing.T) {
		out, err := Assign(State{Status: domain.TicketStatusInProgress, AssignedTo: strPtr("admin-1")}, strPtr("admin-2"))
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusInProgress, out.State.Status)
		assert.Len(t, out.Events, 1)
		_, ok := out.StatusChange()
		assert.False(t, ok)
	})

	t.Run("unassign on open keeps status", func(t *testing.T) {
		out, err := Assign(State{Status: domain.TicketStatusOpen, AssignedTo: strPtr("admin-1")}, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusOpen, out.State.Status)
		assert.Nil(t, out.State.AssignedTo)
		ev, ok := out.AssigneeChange()
		require.True(t, ok)
		assert.Equal(t, "admin-1", *ev.FromAssignee)
		assert.Nil(t, ev.ToAssignee)
	})

	t.Run("closed is terminal", func(t *testing.T) {
		_, err := Assign(State{Status: domain.TicketStatusClosed}, strPtr("admin-1"))
		assert.ErrorIs(t, err, ErrTicketClosed)
	})
}

func TestSetStatus(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		to      domain.TicketStatus
		wantErr error
	}{
		{name: "noop", state: State{Status: domain.TicketStatusOpen}, to: domain.TicketStatusOpen, wantErr: ErrNoopTransition},
		{name: "in progress without assignee", state: State{Status: domain.TicketStatusOpen}, to: domain.TicketStatusInProgress, wantErr: ErrNoAssignee},
		{name: "in progress with assignee", state: State{Status: domain.TicketStatusOpen, AssignedTo: strPtr("a")}, to: domain.TicketStatusInProgress},
		{name: "resolve in progress", state: State{Status: domain.TicketStatusInProgress, AssignedTo: strPtr("a")}, to: domain.TicketStatusResolved},
		{name: "resolve open", state: State{Status: domain.TicketStatusOpen}, to: domain.TicketStatusResolved, wantErr: ErrNotAllowed},
		{name: "close open", state: State{Status: domain.TicketStatusOpen}, to: domain.TicketStatusClosed},
		{name: "close resolved", state: State{Status: domain.TicketStatusResolved}, to: domain.TicketStatusClosed},
		{name: "reopen closed", state: State{Status: domain.TicketStatusClosed}, to: domain.TicketStatusOpen, wantErr: ErrTicketClosed},
		{name: "back to open from in progress", state: State{Status: domain.TicketStatusInProgress, AssignedTo: strPtr("a")}, to: domain.TicketStatusOpen, wantErr: ErrNotAllowed},
		{name: "unknown", state: State{Status: domain.TicketStatusOpen}, to: domain.TicketStatus("PAUSED"), wantErr: ErrUnknownStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := SetStatus(tt.state, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.state, out.State)
				assert.Empty(t, out.Events)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, out.State.Status)
			ev, ok := out.StatusChange()
			require.True(t, ok)
			assert.True(t, IsEdge(ev.FromStatus, ev.ToStatus))
		})
	}
}

func TestStateApply(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen}
	State{Status: domain.TicketStatusInProgress, AssignedTo: strPtr("admin-1")}.Apply(ticket)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, "admin-1", *ticket.AssignedTo)
	assert.Equal(t, ticket.Status, StateOf(ticket).Status)
}
