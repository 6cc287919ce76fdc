package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return &postgresTx{tx: tx}, nil
}

func (s *postgresStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return getTicket(ctx, s.pool, id, false)
}

func (s *postgresStore) QueryTickets(ctx context.Context, query TicketQuery) ([]domain.Ticket, error) {
	return queryTickets(ctx, s.pool, query)
}

func (s *postgresStore) QueryReplies(ctx context.Context, query ReplyQuery) ([]domain.TicketReply, error) {
	return queryReplies(ctx, s.pool, query)
}

func (s *postgresStore) ListAttachments(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	return listAttachments(ctx, s.pool, ticketID)
}

func (s *postgresStore) ListAudit(ctx context.Context, ticketID string) ([]domain.AuditEntry, error) {
	return listAudit(ctx, s.pool, ticketID)
}

func (s *postgresStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.pool, id)
}

func (s *postgresStore) GetUsers(ctx context.Context, ids []string) (map[string]domain.User, error) {
	return getUsers(ctx, s.pool, ids)
}

func (s *postgresStore) QueryUsers(ctx context.Context, query UserQuery) ([]domain.User, error) {
	return queryUsers(ctx, s.pool, query)
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return getTicket(ctx, t.tx, id, true)
}

func (t *postgresTx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	return insertTicket(ctx, t.tx, ticket)
}

func (t *postgresTx) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	return updateTicket(ctx, t.tx, ticket)
}

func (t *postgresTx) InsertReply(ctx context.Context, reply *domain.TicketReply) error {
	return insertReply(ctx, t.tx, reply)
}

func (t *postgresTx) InsertAttachment(ctx context.Context, attachment *domain.Attachment) error {
	return insertAttachment(ctx, t.tx, attachment)
}

func (t *postgresTx) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	return appendAudit(ctx, t.tx, entry)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return errors.Wrap(t.tx.Commit(ctx), "commit transaction")
}

// Rollback is a no-op once the transaction has been committed.
func (t *postgresTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return errors.Wrap(err, "rollback transaction")
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
