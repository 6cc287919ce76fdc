package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Reader exposes the read side of the persistence collaborator.
type Reader interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	QueryTickets(ctx context.Context, query TicketQuery) ([]domain.Ticket, error)
	QueryReplies(ctx context.Context, query ReplyQuery) ([]domain.TicketReply, error)
	ListAttachments(ctx context.Context, ticketID string) ([]domain.Attachment, error)
	ListAudit(ctx context.Context, ticketID string) ([]domain.AuditEntry, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]domain.User, error)
	QueryUsers(ctx context.Context, query UserQuery) ([]domain.User, error)
}

// Store is the persistence collaborator used by the services.
type Store interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
}

// Tx groups writes that must commit or roll back together. LockTicket
// serializes concurrent mutations of the same ticket until the transaction
// ends.
type Tx interface {
	LockTicket(ctx context.Context, id string) (*domain.Ticket, error)
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
	InsertReply(ctx context.Context, reply *domain.TicketReply) error
	InsertAttachment(ctx context.Context, attachment *domain.Attachment) error
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithinTx runs fn inside a transaction, rolling back on any error.
func WithinTx(ctx context.Context, store Store, fn func(tx Tx) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return nil
}
