package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Attachments []AttachmentRequest   `json:"attachments"`
}

// CreateReplyRequest payload.
type CreateReplyRequest struct {
	Content     string              `json:"content"`
	IsInternal  bool                `json:"is_internal"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// AssignRequest payload. A null or missing assignee_id unassigns.
type AssignRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// StatusRequest payload.
type StatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AttachmentRequest references content previously uploaded through
// POST /attachments.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// TicketResponse is the ticket as rendered to callers.
type TicketResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     domain.TicketCategory `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	CustomerID   string                `json:"customer_id"`
	AssignedTo   *string               `json:"assigned_to"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	LastActivity time.Time             `json:"last_activity"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Replies     []ReplyResponse      `json:"replies"`
	Attachments []AttachmentResponse `json:"attachments"`
	Audit       []AuditEntryResponse `json:"audit,omitempty"`
}

// ReplyResponse represents a thread message.
type ReplyResponse struct {
	ID          string               `json:"id"`
	TicketID    string               `json:"ticket_id"`
	AuthorID    string               `json:"author_id"`
	Content     string               `json:"content"`
	IsInternal  bool                 `json:"is_internal"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ReplyCreatedResponse returns the reply with the ticket state it produced.
type ReplyCreatedResponse struct {
	Reply  ReplyResponse  `json:"reply"`
	Ticket TicketResponse `json:"ticket"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string  `json:"id"`
	ReplyID    *string `json:"reply_id,omitempty"`
	StorageKey string  `json:"storage_key"`
	FileName   string  `json:"file_name"`
	MimeType   string  `json:"mime_type"`
	SizeBytes  int64   `json:"size_bytes"`
	URL        string  `json:"url"`
}

// UploadResponse describes a stored file ready to be attached.
type UploadResponse struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// AuditEntryResponse is one audit trail line.
type AuditEntryResponse struct {
	ID           string               `json:"id"`
	ActorID      string               `json:"actor_id"`
	ActorName    string               `json:"actor_name"`
	Action       domain.AuditAction   `json:"action"`
	FromStatus   *domain.TicketStatus `json:"from_status,omitempty"`
	ToStatus     *domain.TicketStatus `json:"to_status,omitempty"`
	FromAssignee *string              `json:"from_assignee,omitempty"`
	ToAssignee   *string              `json:"to_assignee,omitempty"`
	Message      string               `json:"message"`
	CreatedAt    time.Time            `json:"created_at"`
}
