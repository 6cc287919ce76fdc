package repository

import (
	"context"

	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func insertAttachment(ctx context.Context, q querier, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO attachments (id, ticket_id, reply_id, storage_key, original_filename, size_bytes, mime_type,
            uploaded_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := q.Exec(ctx, query,
		attachment.ID,
		attachment.TicketID,
		attachment.ReplyID,
		attachment.StorageKey,
		attachment.OriginalFilename,
		attachment.SizeBytes,
		attachment.MimeType,
		attachment.UploadedBy,
		attachment.CreatedAt,
	)
	return errors.Wrap(err, "insert attachment")
}

func listAttachments(ctx context.Context, q querier, ticketID string) ([]domain.Attachment, error) {
	const query = `
        SELECT id, ticket_id, reply_id, storage_key, original_filename, size_bytes, mime_type, uploaded_by, created_at
        FROM attachments WHERE ticket_id=$1 ORDER BY created_at ASC, id`
	rows, err := q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, errors.Wrap(err, "list attachments")
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.ReplyID,
			&attachment.StorageKey,
			&attachment.OriginalFilename,
			&attachment.SizeBytes,
			&attachment.MimeType,
			&attachment.UploadedBy,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
