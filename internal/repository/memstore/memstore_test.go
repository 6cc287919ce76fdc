package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	admin := "admin-1"
	s.PutTickets(
		domain.Ticket{ID: "t1", Title: "Login Problem", Description: "cannot sign in", Category: domain.TicketCategoryTechnical, Status: domain.TicketStatusOpen, CustomerID: "c1", CreatedAt: base, LastActivity: base.Add(3 * time.Hour)},
		domain.Ticket{ID: "t2", Title: "relogin needed", Description: "session expires", Category: domain.TicketCategoryTechnical, Status: domain.TicketStatusInProgress, CustomerID: "c2", AssignedTo: &admin, CreatedAt: base.Add(time.Hour), LastActivity: base.Add(2 * time.Hour)},
		domain.Ticket{ID: "t3", Title: "Billing question", Description: "invoice 50% wrong", Category: domain.TicketCategoryBilling, Status: domain.TicketStatusResolved, CustomerID: "c1", CreatedAt: base.Add(2 * time.Hour), LastActivity: base.Add(time.Hour)},
	)
	s.PutReplies(
		domain.TicketReply{ID: "r1", TicketID: "t3", AuthorID: "admin-1", Content: "VPN token reset", IsInternal: true, CreatedAt: base},
		domain.TicketReply{ID: "r2", TicketID: "t2", AuthorID: "admin-1", Content: "try the vpn client", CreatedAt: base},
	)
	s.PutUsers(
		domain.User{ID: "admin-1", Role: domain.RoleAdmin, Name: "Ada Admin", Email: "ada@example.com"},
		domain.User{ID: "c1", Role: domain.RoleCustomer, Name: "Carl Customer", Email: "carl@example.com"},
		domain.User{ID: "c2", Role: domain.RoleCustomer, Name: "Bea Buyer", Email: "bea@shop.test"},
	)
	return s
}

func ids(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func TestQueryTickets(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query repository.TicketQuery
		want  []string
	}{
		{name: "all by last activity", query: repository.TicketQuery{}, want: []string{"t1", "t2", "t3"}},
		{name: "title contains", query: repository.TicketQuery{Where: []repository.Clause{repository.Contains(repository.FieldTitle, "LOGIN")}}, want: []string{"t1", "t2"}},
		{name: "customer scope", query: repository.TicketQuery{Where: []repository.Clause{repository.Eq(repository.FieldCustomerID, "c1")}}, want: []string{"t1", "t3"}},
		{name: "status in", query: repository.TicketQuery{Where: []repository.Clause{repository.In(repository.FieldStatus, "OPEN", "RESOLVED")}}, want: []string{"t1", "t3"}},
		{name: "unassigned", query: repository.TicketQuery{Where: []repository.Clause{repository.IsNull(repository.FieldAssignedTo)}}, want: []string{"t1", "t3"}},
		{name: "assigned to", query: repository.TicketQuery{Where: []repository.Clause{repository.Eq(repository.FieldAssignedTo, "admin-1")}}, want: []string{"t2"}},
		{name: "created range", query: repository.TicketQuery{Where: []repository.Clause{
			repository.OnOrAfter(repository.FieldCreatedAt, base.Add(time.Hour)),
			repository.OnOrBefore(repository.FieldCreatedAt, base.Add(time.Hour)),
		}}, want: []string{"t2"}},
		{name: "public reply", query: repository.TicketQuery{Where: []repository.Clause{repository.ReplyContains{Term: "vpn"}}}, want: []string{"t2"}},
		{name: "internal reply", query: repository.TicketQuery{Where: []repository.Clause{repository.ReplyContains{Term: "vpn", IncludeInternal: true}}}, want: []string{"t2", "t3"}},
		{name: "or group", query: repository.TicketQuery{Where: []repository.Clause{repository.Or(
			repository.Contains(repository.FieldTitle, "billing"),
			repository.Contains(repository.FieldDescription, "session"),
		)}}, want: []string{"t2", "t3"}},
		{name: "limit", query: repository.TicketQuery{Limit: 2}, want: []string{"t1", "t2"}},
		{name: "and keeps scope and limit", query: repository.TicketQuery{
			Where: []repository.Clause{repository.Eq(repository.FieldCustomerID, "c1")},
			Limit: 1,
		}.And(repository.Eq(repository.FieldCategory, "BILLING")), want: []string{"t3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryTickets(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestQueryTicketsRejectsBadClause(t *testing.T) {
	s := seed(t)
	_, err := s.QueryTickets(context.Background(), repository.TicketQuery{Where: []repository.Clause{
		repository.Compare{Field: repository.FieldCreatedAt, Op: repository.OpEq, Value: "x"},
	}})
	assert.Error(t, err)
}

func TestQueryReplies(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	public, err := s.QueryReplies(ctx, repository.ReplyQuery{TicketIDs: []string{"t2", "t3"}, ContentContains: "VPN"})
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "r2", public[0].ID)

	all, err := s.QueryReplies(ctx, repository.ReplyQuery{TicketIDs: []string{"t2", "t3"}, IncludeInternal: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQueryUsers(t *testing.T) {
	s := seed(t)
	role := domain.RoleCustomer

	users, err := s.QueryUsers(context.Background(), repository.UserQuery{Role: &role, NameOrEmailContains: "SHOP"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "c2", users[0].ID)

	users, err = s.QueryUsers(context.Background(), repository.UserQuery{Role: &role, Limit: 1})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Bea Buyer", users[0].Name)
}

func TestTxCommitAppliesAllWrites(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	err := repository.WithinTx(ctx, s, func(tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, "t1")
		if err != nil {
			return err
		}
		ticket.Status = domain.TicketStatusInProgress
		if err := tx.UpdateTicket(ctx, ticket); err != nil {
			return err
		}
		if err := tx.InsertReply(ctx, &domain.TicketReply{ID: "r3", TicketID: "t1", Content: "on it"}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &domain.AuditEntry{ID: "a1", TicketID: "t1"})
	})
	require.NoError(t, err)

	ticket, err := s.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	_, replies, _, audit := s.Counts()
	assert.Equal(t, 3, replies)
	assert.Equal(t, 1, audit)
}

func TestTxFailureRollsBackEverything(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	boom := errors.New("disk full")
	s.SetFailFunc(func(step string) error {
		if step == "append_audit" {
			return boom
		}
		return nil
	})

	err := repository.WithinTx(ctx, s, func(tx repository.Tx) error {
		ticket, err := tx.LockTicket(ctx, "t1")
		if err != nil {
			return err
		}
		ticket.Status = domain.TicketStatusClosed
		if err := tx.UpdateTicket(ctx, ticket); err != nil {
			return err
		}
		if err := tx.InsertAttachment(ctx, &domain.Attachment{ID: "att-1", TicketID: "t1"}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &domain.AuditEntry{ID: "a1", TicketID: "t1"})
	})
	assert.ErrorIs(t, err, boom)

	ticket, err := s.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	_, replies, attachments, audit := s.Counts()
	assert.Equal(t, 2, replies)
	assert.Zero(t, attachments)
	assert.Zero(t, audit)

	s.SetFailFunc(nil)
	require.NoError(t, repository.WithinTx(ctx, s, func(repository.Tx) error { return nil }), "writer lock released after rollback")
}

func TestTxSerializesWriters(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repository.WithinTx(ctx, s, func(tx repository.Tx) error {
				ticket, err := tx.LockTicket(ctx, "t1")
				if err != nil {
					return err
				}
				ticket.LastActivity = ticket.LastActivity.Add(time.Minute)
				return tx.UpdateTicket(ctx, ticket)
			})
		}()
	}
	wg.Wait()

	ticket, err := s.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(3*time.Hour+20*time.Minute), ticket.LastActivity)
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.GetTicket(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.GetUser(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
