package domain

import "time"

// AuditAction captures what changed in an audit entry.
type AuditAction string

const (
	AuditActionStatusChange AuditAction = "STATUS_CHANGE"
	AuditActionAssignment   AuditAction = "ASSIGNMENT"
)

// AuditEntry is an immutable audit trail entry written in the same
// transaction as the change it describes.
type AuditEntry struct {
	ID           string
	TicketID     string
	ActorID      string
	ActorName    string
	Action       AuditAction
	FromStatus   *TicketStatus
	ToStatus     *TicketStatus
	FromAssignee *string
	ToAssignee   *string
	Message      string
	CreatedAt    time.Time
}
