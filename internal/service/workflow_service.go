package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/search"
	"github.com/spec-kit/helpdesk/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	MinTitleLength       = 5
	MinDescriptionLength = 10

	unassignedLabel    = "Unassigned"
	replyPreviewLength = 140
)

// WorkflowService runs every ticket mutation: creation, replies, assignment
// and explicit status changes. Business checks run on a snapshot before a
// transaction is opened and again on the locked row inside it.
type WorkflowService struct {
	store       repository.Store
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	clock       func() time.Time
	attachments AttachmentRules
	files       AttachmentSource
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	Store       repository.Store
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Clock       func() time.Time
	Attachments AttachmentRules
	Files       AttachmentSource
}

// CreateTicketInput describes a new ticket.
type CreateTicketInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
	Attachments []AttachmentInput
}

// AddReplyInput describes a reply. IsInternal is ignored for customers.
type AddReplyInput struct {
	Content     string
	IsInternal  bool
	Attachments []AttachmentInput
}

// TicketDetail is a ticket with everything the caller may see about it.
type TicketDetail struct {
	Ticket      domain.Ticket
	Replies     []domain.TicketReply
	Attachments []domain.Attachment
	Audit       []domain.AuditEntry
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
		clock:       clock,
		attachments: deps.Attachments,
		files:       deps.Files,
	}
}

// CreateTicket opens a ticket on behalf of a customer.
func (s *WorkflowService) CreateTicket(ctx context.Context, p domain.Principal, input CreateTicketInput) (*domain.Ticket, error) {
	if !policy.CanCreate(p) {
		return nil, apperrors.NewForbidden("only customers can create tickets")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if utf8.RuneCountInString(title) < MinTitleLength {
		details["title"] = fmt.Sprintf("must be at least %d characters", MinTitleLength)
	}
	if utf8.RuneCountInString(description) < MinDescriptionLength {
		details["description"] = fmt.Sprintf("must be at least %d characters", MinDescriptionLength)
	}
	if !input.Category.Valid() {
		details["category"] = "unknown category"
	}
	if !input.Priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}
	attachments, err := s.resolveAttachments(ctx, p, input.Attachments)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		Category:     input.Category,
		Priority:     input.Priority,
		Status:       domain.TicketStatusOpen,
		CustomerID:   p.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}
	err = repository.WithinTx(ctx, s.store, func(tx repository.Tx) error {
		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}
		_, err := s.insertAttachments(ctx, tx, p, ticket.ID, nil, attachments, now)
		return err
	})
	if err != nil {
		return nil, s.mutationFailed("create_ticket", ticket.ID, p, err)
	}

	s.publish(ctx, p, ticket.ID, now, events.EventTicketCreated, events.TicketCreatedPayload{
		Title:       ticket.Title,
		Category:    ticket.Category,
		Priority:    ticket.Priority,
		Attachments: len(attachments),
	})
	return ticket, nil
}

// AddReply appends a reply and applies the reply side effect on the status.
func (s *WorkflowService) AddReply(ctx context.Context, p domain.Principal, ticketID string, input AddReplyInput) (*domain.TicketReply, *domain.Ticket, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, nil, apperrors.NewValidationError("reply content is required", map[string]any{"content": "must not be blank"})
	}
	attachments, err := s.resolveAttachments(ctx, p, input.Attachments)
	if err != nil {
		return nil, nil, err
	}
	internal := input.IsInternal && policy.CanWriteInternal(p)

	snapshot, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkReply(p, snapshot); err != nil {
		return nil, nil, err
	}
	actor, err := s.actorName(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock()
	reply := &domain.TicketReply{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		AuthorID:   p.ID,
		Content:    content,
		IsInternal: internal,
		CreatedAt:  now,
	}
	var (
		ticket  *domain.Ticket
		outcome workflow.Outcome
	)
	err = repository.WithinTx(ctx, s.store, func(tx repository.Tx) error {
		locked, err := s.lockTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if err := s.checkReply(p, locked); err != nil {
			return err
		}
		outcome, _ = workflow.Reply(workflow.StateOf(locked), p.Role, internal)
		outcome.State.Apply(locked)
		locked.UpdatedAt = now
		locked.LastActivity = now

		if err := tx.InsertReply(ctx, reply); err != nil {
			return err
		}
		replyID := reply.ID
		if reply.Attachments, err = s.insertAttachments(ctx, tx, p, ticketID, &replyID, attachments, now); err != nil {
			return err
		}
		if err := tx.UpdateTicket(ctx, locked); err != nil {
			return err
		}
		if ev, ok := outcome.StatusChange(); ok {
			if err := tx.AppendAudit(ctx, statusAudit(ticketID, p, actor, ev, now)); err != nil {
				return err
			}
		}
		ticket = locked
		return nil
	})
	if err != nil {
		return nil, nil, s.mutationFailed("add_reply", ticketID, p, err)
	}

	s.publish(ctx, p, ticketID, now, events.EventTicketReplyAdded, events.TicketReplyAddedPayload{
		ReplyID:     reply.ID,
		IsInternal:  reply.IsInternal,
		BodyPreview: search.Truncate(reply.Content, replyPreviewLength),
		Attachments: len(reply.Attachments),
	})
	s.publishStatusChange(ctx, p, ticketID, now, outcome, "reply")
	return reply, ticket, nil
}

// AssignTicket sets or clears the admin responsible for a ticket.
func (s *WorkflowService) AssignTicket(ctx context.Context, p domain.Principal, ticketID string, assigneeID *string) (*domain.Ticket, error) {
	if !policy.CanAssign(p) {
		return nil, apperrors.NewForbidden("only admins can assign tickets")
	}
	if assigneeID != nil && strings.TrimSpace(*assigneeID) == "" {
		assigneeID = nil
	}
	snapshot, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if assigneeID != nil {
		assignee, err := s.store.GetUser(ctx, *assigneeID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": *assigneeID})
		}
		if err != nil {
			return nil, s.mutationFailed("assign_ticket", ticketID, p, err)
		}
		if !assignee.IsAdmin() {
			return nil, apperrors.NewValidationError("assignee must be an admin", map[string]any{"assignee_id": *assigneeID})
		}
	}
	if _, err := workflow.Assign(workflow.StateOf(snapshot), assigneeID); err != nil {
		return nil, transitionError(err, snapshot.Status, snapshot.Status)
	}
	actor, err := s.actorName(ctx, p)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var (
		ticket  *domain.Ticket
		outcome workflow.Outcome
	)
	err = repository.WithinTx(ctx, s.store, func(tx repository.Tx) error {
		locked, err := s.lockTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		outcome, err = workflow.Assign(workflow.StateOf(locked), assigneeID)
		if err != nil {
			return transitionError(err, locked.Status, locked.Status)
		}
		assignment, _ := outcome.AssigneeChange()
		names, err := s.userNames(ctx, assignment.FromAssignee, assignment.ToAssignee)
		if err != nil {
			return err
		}
		entry := assignmentAudit(ticketID, p, actor, assignment, names, now)
		if ev, ok := outcome.StatusChange(); ok {
			from, to := ev.FromStatus, ev.ToStatus
			entry.FromStatus, entry.ToStatus = &from, &to
			entry.Message = strings.TrimSuffix(entry.Message, ".") +
				fmt.Sprintf("; status changed from %s to %s.", from.Label(), to.Label())
		}

		outcome.State.Apply(locked)
		locked.UpdatedAt = now
		locked.LastActivity = now
		if err := tx.UpdateTicket(ctx, locked); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		ticket = locked
		return nil
	})
	if err != nil {
		return nil, s.mutationFailed("assign_ticket", ticketID, p, err)
	}

	if ev, ok := outcome.AssigneeChange(); ok {
		s.publish(ctx, p, ticketID, now, events.EventTicketAssigned, events.TicketAssignedPayload{
			OldAssigneeID: ev.FromAssignee,
			NewAssigneeID: ev.ToAssignee,
		})
	}
	s.publishStatusChange(ctx, p, ticketID, now, outcome, "assignment")
	return ticket, nil
}

// SetStatus moves a ticket along an explicit status edge.
func (s *WorkflowService) SetStatus(ctx context.Context, p domain.Principal, ticketID string, to domain.TicketStatus) (*domain.Ticket, error) {
	if !policy.CanSetStatus(p) {
		return nil, apperrors.NewForbidden("only admins can change ticket status")
	}
	if !to.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(to)})
	}
	snapshot, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if _, err := workflow.SetStatus(workflow.StateOf(snapshot), to); err != nil {
		return nil, transitionError(err, snapshot.Status, to)
	}
	actor, err := s.actorName(ctx, p)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var (
		ticket  *domain.Ticket
		outcome workflow.Outcome
	)
	err = repository.WithinTx(ctx, s.store, func(tx repository.Tx) error {
		locked, err := s.lockTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		outcome, err = workflow.SetStatus(workflow.StateOf(locked), to)
		if err != nil {
			return transitionError(err, locked.Status, to)
		}
		ev, _ := outcome.StatusChange()
		outcome.State.Apply(locked)
		locked.UpdatedAt = now
		locked.LastActivity = now
		if err := tx.UpdateTicket(ctx, locked); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, statusAudit(ticketID, p, actor, ev, now)); err != nil {
			return err
		}
		ticket = locked
		return nil
	})
	if err != nil {
		return nil, s.mutationFailed("set_status", ticketID, p, err)
	}

	s.publishStatusChange(ctx, p, ticketID, now, outcome, "explicit")
	return ticket, nil
}

// GetTicket returns the ticket with its visible replies and attachments.
// The audit trail is included for admins only.
func (s *WorkflowService) GetTicket(ctx context.Context, p domain.Principal, ticketID string) (*TicketDetail, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(p, ticket) {
		return nil, apperrors.NewForbidden("ticket belongs to another customer")
	}
	replies, err := s.store.QueryReplies(ctx, repository.ReplyQuery{
		TicketIDs:       []string{ticketID},
		IncludeInternal: p.IsAdmin(),
	})
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	replies = policy.VisibleReplies(p, replies)
	attachments, err := s.store.ListAttachments(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	detail := &TicketDetail{Ticket: *ticket, Replies: replies}
	byReply := map[string][]domain.Attachment{}
	for _, a := range attachments {
		if a.ReplyID == nil {
			detail.Attachments = append(detail.Attachments, a)
			continue
		}
		byReply[*a.ReplyID] = append(byReply[*a.ReplyID], a)
	}
	for i := range detail.Replies {
		detail.Replies[i].Attachments = byReply[detail.Replies[i].ID]
	}
	if policy.CanSeeAudit(p) {
		if detail.Audit, err = s.store.ListAudit(ctx, ticketID); err != nil {
			return nil, apperrors.NewStorageError(err)
		}
	}
	return detail, nil
}

// ListAuditLog returns the audit trail of a ticket, oldest first.
func (s *WorkflowService) ListAuditLog(ctx context.Context, p domain.Principal, ticketID string) ([]domain.AuditEntry, error) {
	if !policy.CanSeeAudit(p) {
		return nil, apperrors.NewForbidden("only admins can read the audit log")
	}
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return entries, nil
}

func (s *WorkflowService) checkReply(p domain.Principal, ticket *domain.Ticket) error {
	if !policy.CanView(p, ticket) {
		return apperrors.NewForbidden("ticket belongs to another customer")
	}
	if !policy.CanReply(p, ticket) {
		return transitionError(workflow.ErrTicketClosed, ticket.Status, ticket.Status)
	}
	return nil
}

func (s *WorkflowService) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return ticket, nil
}

func (s *WorkflowService) lockTicket(ctx context.Context, tx repository.Tx, id string) (*domain.Ticket, error) {
	ticket, err := tx.LockTicket(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return ticket, err
}

// actorName resolves the display name written into audit messages.
func (s *WorkflowService) actorName(ctx context.Context, p domain.Principal) (string, error) {
	if p.Name != "" {
		return p.Name, nil
	}
	user, err := s.store.GetUser(ctx, p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return p.DisplayName(), nil
	}
	if err != nil {
		return "", apperrors.NewStorageError(err)
	}
	return user.Name, nil
}

func (s *WorkflowService) userNames(ctx context.Context, ids ...*string) (map[string]string, error) {
	var lookup []string
	for _, id := range ids {
		if id != nil {
			lookup = append(lookup, *id)
		}
	}
	names := make(map[string]string, len(lookup))
	if len(lookup) == 0 {
		return names, nil
	}
	users, err := s.store.GetUsers(ctx, lookup)
	if err != nil {
		return nil, err
	}
	for _, id := range lookup {
		names[id] = id
		if u, ok := users[id]; ok && u.Name != "" {
			names[id] = u.Name
		}
	}
	return names, nil
}

func (s *WorkflowService) insertAttachments(ctx context.Context, tx repository.Tx, p domain.Principal, ticketID string, replyID *string, inputs []AttachmentInput, now time.Time) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for _, in := range inputs {
		a := domain.Attachment{
			ID:               uuid.NewString(),
			TicketID:         ticketID,
			ReplyID:          replyID,
			StorageKey:       in.StorageKey,
			OriginalFilename: strings.TrimSpace(in.OriginalFilename),
			SizeBytes:        in.SizeBytes,
			MimeType:         normalizeMime(in.MimeType),
			UploadedBy:       p.ID,
			CreatedAt:        now,
		}
		if err := tx.InsertAttachment(ctx, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// mutationFailed classifies a failed transaction. Business errors raised on
// the locked row pass through; anything else is an opaque storage error.
func (s *WorkflowService) mutationFailed(op, ticketID string, p domain.Principal, err error) error {
	err = apperrors.AsStorage(err)
	if apperrors.IsCode(err, apperrors.CodeStorage) {
		s.logger.Error("mutation rolled back",
			zap.String("op", op),
			zap.String("ticket_id", ticketID),
			zap.String("actor_id", p.ID),
			zap.Error(errors.Unwrap(err)))
	}
	return err
}

func (s *WorkflowService) publishStatusChange(ctx context.Context, p domain.Principal, ticketID string, at time.Time, outcome workflow.Outcome, cause string) {
	ev, ok := outcome.StatusChange()
	if !ok {
		return
	}
	s.metrics.RecordTransition(string(ev.FromStatus), string(ev.ToStatus))
	s.publish(ctx, p, ticketID, at, events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
		OldStatus: ev.FromStatus,
		NewStatus: ev.ToStatus,
		Cause:     cause,
	})
}

// publish runs after commit; a failing subscriber never fails the mutation.
func (s *WorkflowService) publish(ctx context.Context, p domain.Principal, ticketID string, at time.Time, typ events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TicketID:  ticketID,
		Actor:     events.Actor{ID: p.ID, Role: p.Role},
		Timestamp: at,
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(typ)),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

func transitionError(err error, from, to domain.TicketStatus) error {
	details := map[string]any{"from": string(from), "to": string(to)}
	switch {
	case errors.Is(err, workflow.ErrUnknownStatus):
		return apperrors.NewValidationError("unknown status", details)
	case errors.Is(err, workflow.ErrTicketClosed),
		errors.Is(err, workflow.ErrNoopTransition),
		errors.Is(err, workflow.ErrNoAssignee),
		errors.Is(err, workflow.ErrNotAllowed):
		return apperrors.NewInvalidTransition(err.Error(), details)
	}
	return err
}

func statusAudit(ticketID string, p domain.Principal, actor string, ev workflow.Event, now time.Time) *domain.AuditEntry {
	from, to := ev.FromStatus, ev.ToStatus
	return &domain.AuditEntry{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		ActorID:    p.ID,
		ActorName:  actor,
		Action:     domain.AuditActionStatusChange,
		FromStatus: &from,
		ToStatus:   &to,
		Message:    fmt.Sprintf("status changed from %s to %s by %s.", from.Label(), to.Label(), actor),
		CreatedAt:  now,
	}
}

func assignmentAudit(ticketID string, p domain.Principal, actor string, ev workflow.Event, names map[string]string, now time.Time) *domain.AuditEntry {
	label := func(id *string) string {
		if id == nil {
			return unassignedLabel
		}
		return names[*id]
	}
	return &domain.AuditEntry{
		ID:           uuid.NewString(),
		TicketID:     ticketID,
		ActorID:      p.ID,
		ActorName:    actor,
		Action:       domain.AuditActionAssignment,
		FromAssignee: ev.FromAssignee,
		ToAssignee:   ev.ToAssignee,
		Message: fmt.Sprintf("assignment changed from %s to %s by %s.",
			label(ev.FromAssignee), label(ev.ToAssignee), actor),
		CreatedAt: now,
	}
}
