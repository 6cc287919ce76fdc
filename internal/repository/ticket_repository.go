package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const ticketSelect = `
        SELECT t.id, t.title, t.description, t.category, t.priority, t.status, t.customer_id,
               t.assigned_to, t.created_at, t.updated_at, t.last_activity
        FROM tickets t`

func insertTicket(ctx context.Context, q querier, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, description, category, priority, status, customer_id, assigned_to,
            created_at, updated_at, last_activity)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := q.Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.CustomerID,
		ticket.AssignedTo,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.LastActivity,
	)
	return errors.Wrap(err, "insert ticket")
}

func updateTicket(ctx context.Context, q querier, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, assigned_to=$2, updated_at=$3, last_activity=$4
        WHERE id=$5`
	cmd, err := q.Exec(ctx, query,
		ticket.Status,
		ticket.AssignedTo,
		ticket.UpdatedAt,
		ticket.LastActivity,
		ticket.ID,
	)
	if err != nil {
		return errors.Wrap(err, "update ticket")
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func getTicket(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Ticket, error) {
	query := ticketSelect + ` WHERE t.id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	ticket, err := scanTicket(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func queryTickets(ctx context.Context, q querier, tq TicketQuery) ([]domain.Ticket, error) {
	filter := &sqlFilter{}
	where, err := filter.where(tq.Where)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.last_activity DESC, t.id`, ticketSelect, where)
	if tq.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, tq.Limit)
	}

	rows, err := q.Query(ctx, query, filter.args...)
	if err != nil {
		return nil, errors.Wrap(err, "query tickets")
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CustomerID,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.LastActivity,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
