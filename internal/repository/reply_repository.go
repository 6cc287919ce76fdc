package repository

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func insertReply(ctx context.Context, q querier, reply *domain.TicketReply) error {
	const query = `
        INSERT INTO ticket_replies (id, ticket_id, author_id, content, is_internal, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := q.Exec(ctx, query,
		reply.ID,
		reply.TicketID,
		reply.AuthorID,
		reply.Content,
		reply.IsInternal,
		reply.CreatedAt,
	)
	return errors.Wrap(err, "insert reply")
}

func queryReplies(ctx context.Context, q querier, rq ReplyQuery) ([]domain.TicketReply, error) {
	if len(rq.TicketIDs) == 0 {
		return nil, nil
	}
	query := `
        SELECT id, ticket_id, author_id, content, is_internal, created_at
        FROM ticket_replies WHERE ticket_id = ANY($1)`
	args := []any{rq.TicketIDs}
	if !rq.IncludeInternal {
		query += ` AND NOT is_internal`
	}
	if term := strings.TrimSpace(rq.ContentContains); term != "" {
		args = append(args, likePattern(term))
		query += ` AND content ILIKE $2 ESCAPE '\'`
	}
	query += ` ORDER BY created_at ASC, id`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query replies")
	}
	defer rows.Close()

	var result []domain.TicketReply
	for rows.Next() {
		var reply domain.TicketReply
		if err := rows.Scan(
			&reply.ID,
			&reply.TicketID,
			&reply.AuthorID,
			&reply.Content,
			&reply.IsInternal,
			&reply.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, reply)
	}
	return result, rows.Err()
}
