package domain

import "time"

// Attachment references file store content uploaded with a ticket or reply.
type Attachment struct {
	ID               string
	TicketID         string
	ReplyID          *string
	StorageKey       string
	OriginalFilename string
	SizeBytes        int64
	MimeType         string
	UploadedBy       string
	CreatedAt        time.Time
}
