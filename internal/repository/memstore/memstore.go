// Package memstore is an in-process implementation of repository.Store. It
// backs the service when no database is configured and serves as the
// persistence double in tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/search"
)

// FailFunc lets tests inject a failure into a named write step.
// Steps: begin, lock_ticket, insert_ticket, update_ticket, insert_reply,
// insert_attachment, append_audit, commit.
type FailFunc func(step string) error

// Store keeps all rows in memory. Writers are serialized by a store-wide
// lock held from Begin until Commit or Rollback.
type Store struct {
	writer sync.Mutex

	mu          sync.RWMutex
	tickets     map[string]domain.Ticket
	replies     []domain.TicketReply
	attachments []domain.Attachment
	audit       []domain.AuditEntry
	users       map[string]domain.User

	failMu sync.Mutex
	fail   FailFunc
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickets: make(map[string]domain.Ticket),
		users:   make(map[string]domain.User),
	}
}

// SetFailFunc installs a failure hook; nil removes it.
func (s *Store) SetFailFunc(fn FailFunc) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.fail = fn
}

func (s *Store) check(step string) error {
	s.failMu.Lock()
	fn := s.fail
	s.failMu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(step)
}

// PutUsers inserts or replaces reference users.
func (s *Store) PutUsers(users ...domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
	}
}

// PutTickets inserts or replaces tickets without going through a transaction.
func (s *Store) PutTickets(tickets ...domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickets {
		s.tickets[t.ID] = cloneTicket(t)
	}
}

// PutReplies appends replies without going through a transaction.
func (s *Store) PutReplies(replies ...domain.TicketReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Counts reports the number of stored rows per table.
func (s *Store) Counts() (tickets, replies, attachments, audit int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets), len(s.replies), len(s.attachments), len(s.audit)
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t = cloneTicket(t)
	return &t, nil
}

func (s *Store) QueryTickets(_ context.Context, query repository.TicketQuery) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Ticket
	for _, t := range s.tickets {
		ok, err := s.matchAll(query.Where, &t)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, cloneTicket(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastActivity.Equal(result[j].LastActivity) {
			return result[i].LastActivity.After(result[j].LastActivity)
		}
		return result[i].ID < result[j].ID
	})
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

func (s *Store) QueryReplies(_ context.Context, query repository.ReplyQuery) ([]domain.TicketReply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(query.TicketIDs))
	for _, id := range query.TicketIDs {
		ids[id] = struct{}{}
	}
	term := strings.TrimSpace(query.ContentContains)
	var result []domain.TicketReply
	for _, r := range s.replies {
		if _, ok := ids[r.TicketID]; !ok {
			continue
		}
		if r.IsInternal && !query.IncludeInternal {
			continue
		}
		if term != "" && !search.ContainsFold(r.Content, term) {
			continue
		}
		result = append(result, r)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListAttachments(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Attachment
	for _, a := range s.attachments {
		if a.TicketID == ticketID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *Store) ListAudit(_ context.Context, ticketID string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.AuditEntry
	for _, e := range s.audit {
		if e.TicketID == ticketID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUsers(_ context.Context, ids []string) (map[string]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

func (s *Store) QueryUsers(_ context.Context, query repository.UserQuery) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term := strings.TrimSpace(query.NameOrEmailContains)
	var result []domain.User
	for _, u := range s.users {
		if query.Role != nil && u.Role != *query.Role {
			continue
		}
		if term != "" && !search.ContainsFold(u.Name, term) && !search.ContainsFold(u.Email, term) {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

// Begin acquires the writer lock. It is released by Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.check("begin"); err != nil {
		return nil, err
	}
	s.writer.Lock()
	return &tx{store: s, tickets: map[string]domain.Ticket{}}, nil
}

type tx struct {
	store       *Store
	done        bool
	tickets     map[string]domain.Ticket
	replies     []domain.TicketReply
	attachments []domain.Attachment
	audit       []domain.AuditEntry
}

var errTxDone = errors.New("transaction already finished")

func (t *tx) step(name string) error {
	if t.done {
		return errTxDone
	}
	return t.store.check(name)
}

func (t *tx) LockTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := t.step("lock_ticket"); err != nil {
		return nil, err
	}
	if staged, ok := t.tickets[id]; ok {
		staged = cloneTicket(staged)
		return &staged, nil
	}
	return t.store.GetTicket(ctx, id)
}

func (t *tx) InsertTicket(_ context.Context, ticket *domain.Ticket) error {
	if err := t.step("insert_ticket"); err != nil {
		return err
	}
	t.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (t *tx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if err := t.step("update_ticket"); err != nil {
		return err
	}
	if _, ok := t.tickets[ticket.ID]; !ok {
		if _, err := t.store.GetTicket(ctx, ticket.ID); err != nil {
			return err
		}
	}
	t.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (t *tx) InsertReply(_ context.Context, reply *domain.TicketReply) error {
	if err := t.step("insert_reply"); err != nil {
		return err
	}
	stored := *reply
	stored.Attachments = nil
	t.replies = append(t.replies, stored)
	return nil
}

func (t *tx) InsertAttachment(_ context.Context, attachment *domain.Attachment) error {
	if err := t.step("insert_attachment"); err != nil {
		return err
	}
	t.attachments = append(t.attachments, *attachment)
	return nil
}

func (t *tx) AppendAudit(_ context.Context, entry *domain.AuditEntry) error {
	if err := t.step("append_audit"); err != nil {
		return err
	}
	t.audit = append(t.audit, *entry)
	return nil
}

func (t *tx) Commit(context.Context) error {
	if err := t.step("commit"); err != nil {
		return err
	}
	s := t.store
	s.mu.Lock()
	for id, ticket := range t.tickets {
		s.tickets[id] = ticket
	}
	s.replies = append(s.replies, t.replies...)
	s.attachments = append(s.attachments, t.attachments...)
	s.audit = append(s.audit, t.audit...)
	s.mu.Unlock()
	t.finish()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.tickets = nil
	t.replies = nil
	t.attachments = nil
	t.audit = nil
	t.store.writer.Unlock()
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		t.AssignedTo = &v
	}
	return t
}
