package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/filestore"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const uploadField = "file"

// AttachmentsHandler moves attachment content in and out of the file store.
type AttachmentsHandler struct {
	files    filestore.Store
	workflow *service.WorkflowService
	rules    service.AttachmentRules
	logger   *zap.Logger
}

// NewAttachmentsHandler constructs handler.
func NewAttachmentsHandler(files filestore.Store, workflowService *service.WorkflowService, rules service.AttachmentRules, logger *zap.Logger) *AttachmentsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentsHandler{files: files, workflow: workflowService, rules: rules, logger: logger}
}

// Upload POST /attachments. The returned storage key is then referenced
// from a ticket or reply payload.
func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile(uploadField)
	if err != nil {
		return apperrors.NewValidationError("file is required", map[string]any{uploadField: "missing multipart file"})
	}
	if h.rules.MaxBytes > 0 && header.Size > h.rules.MaxBytes {
		return apperrors.NewValidationError("attachment too large", map[string]any{
			"size_bytes": header.Size,
			"max_bytes":  h.rules.MaxBytes,
		})
	}

	file, err := header.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}

	// The sniffed type wins over whatever the client declared.
	mimeType := filestore.DetectContentType(data)
	if !h.rules.Allows(mimeType) {
		return apperrors.NewValidationError("attachment type not allowed", map[string]any{"mime_type": mimeType})
	}

	obj, err := h.files.Store(c.UserContext(), data, filestore.Metadata{
		Filename:   header.Filename,
		UploadedBy: principal.ID,
	})
	if err != nil {
		h.logger.Error("attachment upload failed", zap.String("actor_id", principal.ID), zap.Error(err))
		return apperrors.NewStorageError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.UploadResponse{
		StorageKey: obj.Key,
		FileName:   obj.Filename,
		MimeType:   obj.ContentType,
		SizeBytes:  obj.SizeBytes,
	}})
}

// Download GET /attachments/:key?ticket_id=. Admins may fetch any key;
// customers only content attached to a ticket they can view.
func (h *AttachmentsHandler) Download(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	key := c.Params("key")
	if !principal.IsAdmin() {
		if err := h.checkAttached(c, key); err != nil {
			return err
		}
	}

	data, obj, err := h.files.Retrieve(c.UserContext(), key)
	if errors.Is(err, filestore.ErrNotFound) {
		return apperrors.NewNotFound("attachment", map[string]any{"key": key})
	}
	if err != nil {
		h.logger.Error("attachment download failed", zap.String("key", key), zap.Error(err))
		return apperrors.NewStorageError(err)
	}

	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderContentDisposition, contentDisposition(obj.Filename))
	return c.Send(data)
}

// contentDisposition quotes the stored name, falling back to the RFC 2231
// form for non-ASCII or control characters.
func contentDisposition(filename string) string {
	name := filestore.CleanFilename(filename)
	if name == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func (h *AttachmentsHandler) checkAttached(c *fiber.Ctx, key string) error {
	principal, _ := currentPrincipal(c)
	ticketID := c.Query("ticket_id")
	if ticketID == "" {
		return apperrors.NewValidationError("ticket_id is required", nil)
	}
	detail, err := h.workflow.GetTicket(c.UserContext(), principal, ticketID)
	if err != nil {
		return err
	}
	for _, att := range detail.Attachments {
		if att.StorageKey == key {
			return nil
		}
	}
	for _, reply := range detail.Replies {
		for _, att := range reply.Attachments {
			if att.StorageKey == key {
				return nil
			}
		}
	}
	return apperrors.NewNotFound("attachment", map[string]any{"key": key})
}
