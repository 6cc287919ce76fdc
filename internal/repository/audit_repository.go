package repository

import (
	"context"

	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func appendAudit(ctx context.Context, q querier, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO ticket_audit_log (id, ticket_id, actor_id, actor_name, action, from_status, to_status,
            from_assignee, to_assignee, message, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.ActorID,
		entry.ActorName,
		entry.Action,
		entry.FromStatus,
		entry.ToStatus,
		entry.FromAssignee,
		entry.ToAssignee,
		entry.Message,
		entry.CreatedAt,
	)
	return errors.Wrap(err, "append audit entry")
}

func listAudit(ctx context.Context, q querier, ticketID string) ([]domain.AuditEntry, error) {
	const query = `
        SELECT id, ticket_id, actor_id, actor_name, action, from_status, to_status, from_assignee, to_assignee,
               message, created_at
        FROM ticket_audit_log WHERE ticket_id=$1 ORDER BY created_at ASC, id`
	rows, err := q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, errors.Wrap(err, "list audit entries")
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorID,
			&entry.ActorName,
			&entry.Action,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.FromAssignee,
			&entry.ToAssignee,
			&entry.Message,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
