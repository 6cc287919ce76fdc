package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket workflow.
type TicketsHandler struct {
	service *service.WorkflowService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(workflowService *service.WorkflowService) *TicketsHandler {
	return &TicketsHandler{service: workflowService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal, service.CreateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Attachments: attachmentInputs(req.Attachments),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// AddReply POST /tickets/:id/replies.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	reply, ticket, err := h.service.AddReply(c.UserContext(), principal, c.Params("id"), service.AddReplyInput{
		Content:     req.Content,
		IsInternal:  req.IsInternal,
		Attachments: attachmentInputs(req.Attachments),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ReplyCreatedResponse{
		Reply:  replyResponse(reply),
		Ticket: ticketResponse(ticket),
	}})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.AssigneeID != nil && *req.AssigneeID == "" {
		req.AssigneeID = nil
	}

	ticket, err := h.service.AssignTicket(c.UserContext(), principal, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// SetStatus POST /tickets/:id/status.
func (h *TicketsHandler) SetStatus(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.SetStatus(c.UserContext(), principal, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListAudit GET /tickets/:id/audit.
func (h *TicketsHandler) ListAudit(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListAuditLog(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": auditResponses(entries)})
}

func currentPrincipal(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Principal{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func attachmentInputs(reqs []dto.AttachmentRequest) []service.AttachmentInput {
	inputs := make([]service.AttachmentInput, 0, len(reqs))
	for _, att := range reqs {
		inputs = append(inputs, service.AttachmentInput{
			StorageKey:       att.StorageKey,
			OriginalFilename: att.FileName,
			SizeBytes:        att.SizeBytes,
			MimeType:         att.MimeType,
		})
	}
	return inputs
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           ticket.ID,
		Title:        ticket.Title,
		Description:  ticket.Description,
		Category:     ticket.Category,
		Priority:     ticket.Priority,
		Status:       ticket.Status,
		CustomerID:   ticket.CustomerID,
		AssignedTo:   ticket.AssignedTo,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		LastActivity: ticket.LastActivity,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketResponse: ticketResponse(&detail.Ticket),
		Replies:        make([]dto.ReplyResponse, 0, len(detail.Replies)),
		Attachments:    attachmentResponses(detail.Attachments),
	}
	for i := range detail.Replies {
		resp.Replies = append(resp.Replies, replyResponse(&detail.Replies[i]))
	}
	if detail.Audit != nil {
		resp.Audit = auditResponses(detail.Audit)
	}
	return resp
}

func replyResponse(reply *domain.TicketReply) dto.ReplyResponse {
	return dto.ReplyResponse{
		ID:          reply.ID,
		TicketID:    reply.TicketID,
		AuthorID:    reply.AuthorID,
		Content:     reply.Content,
		IsInternal:  reply.IsInternal,
		Attachments: attachmentResponses(reply.Attachments),
		CreatedAt:   reply.CreatedAt,
	}
}

func attachmentResponses(attachments []domain.Attachment) []dto.AttachmentResponse {
	out := make([]dto.AttachmentResponse, 0, len(attachments))
	for _, att := range attachments {
		out = append(out, dto.AttachmentResponse{
			ID:         att.ID,
			ReplyID:    att.ReplyID,
			StorageKey: att.StorageKey,
			FileName:   att.OriginalFilename,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
			URL:        attachmentURL(att),
		})
	}
	return out
}

func attachmentURL(att domain.Attachment) string {
	return "/attachments/" + att.StorageKey + "?ticket_id=" + att.TicketID
}

func auditResponses(entries []domain.AuditEntry) []dto.AuditEntryResponse {
	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, dto.AuditEntryResponse{
			ID:           entry.ID,
			ActorID:      entry.ActorID,
			ActorName:    entry.ActorName,
			Action:       entry.Action,
			FromStatus:   entry.FromStatus,
			ToStatus:     entry.ToStatus,
			FromAssignee: entry.FromAssignee,
			ToAssignee:   entry.ToAssignee,
			Message:      entry.Message,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return out
}
