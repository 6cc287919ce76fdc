package domain

import "time"

// TicketReply is a message in a ticket thread. Replies are never edited or
// removed once written.
type TicketReply struct {
	ID          string
	TicketID    string
	AuthorID    string
	Content     string
	IsInternal  bool
	Attachments []Attachment
	CreatedAt   time.Time
}
