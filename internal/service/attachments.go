package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/filestore"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AttachmentSource looks up uploaded content so references can be checked
// against what was actually stored.
type AttachmentSource interface {
	Stat(ctx context.Context, key string) (filestore.Object, error)
}

// AttachmentInput references content already handed to the file store.
type AttachmentInput struct {
	StorageKey       string
	OriginalFilename string
	SizeBytes        int64
	MimeType         string
}

// AttachmentRules bounds attachment size and type. An empty allow-list
// accepts any type; a zero MaxBytes accepts any positive size.
type AttachmentRules struct {
	MaxBytes         int64
	AllowedMimeTypes []string
}

// Validate checks every reference and reports the first offending index.
func (r AttachmentRules) Validate(inputs []AttachmentInput) error {
	for i, in := range inputs {
		field := fmt.Sprintf("attachments[%d]", i)
		switch {
		case strings.TrimSpace(in.StorageKey) == "":
			return invalidAttachment(field, "storage key is required")
		case strings.TrimSpace(in.OriginalFilename) == "":
			return invalidAttachment(field, "file name is required")
		case in.SizeBytes <= 0:
			return invalidAttachment(field, "file is empty")
		case r.MaxBytes > 0 && in.SizeBytes > r.MaxBytes:
			return invalidAttachment(field, fmt.Sprintf("file exceeds %d bytes", r.MaxBytes))
		case !r.Allows(in.MimeType):
			return invalidAttachment(field, fmt.Sprintf("type %q is not allowed", normalizeMime(in.MimeType)))
		}
	}
	return nil
}

// Allows reports whether the mime type is on the allow-list. Parameters such
// as "; charset=utf-8" are ignored.
func (r AttachmentRules) Allows(mimeType string) bool {
	mimeType = normalizeMime(mimeType)
	if mimeType == "" {
		return false
	}
	if len(r.AllowedMimeTypes) == 0 {
		return true
	}
	for _, allowed := range r.AllowedMimeTypes {
		if normalizeMime(allowed) == mimeType {
			return true
		}
	}
	return false
}

// resolveAttachments replaces client supplied metadata with the stored
// object's and rejects keys that were never uploaded or belong to someone
// else. Admins may reference any upload.
func (s *WorkflowService) resolveAttachments(ctx context.Context, p domain.Principal, inputs []AttachmentInput) ([]AttachmentInput, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	resolved := make([]AttachmentInput, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("attachments[%d]", i)
		key := strings.TrimSpace(in.StorageKey)
		if key == "" {
			return nil, invalidAttachment(field, "storage key is required")
		}
		if _, dup := seen[key]; dup {
			return nil, invalidAttachment(field, "storage key is listed twice")
		}
		seen[key] = struct{}{}
		if s.files == nil {
			return nil, invalidAttachment(field, "unknown storage key")
		}
		obj, err := s.files.Stat(ctx, key)
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, invalidAttachment(field, "unknown storage key")
		}
		if err != nil {
			return nil, apperrors.NewStorageError(err)
		}
		if obj.UploadedBy != p.ID && !p.IsAdmin() {
			return nil, apperrors.NewForbidden("attachment was uploaded by another user")
		}
		name := strings.TrimSpace(in.OriginalFilename)
		if name == "" {
			name = obj.Filename
		}
		resolved = append(resolved, AttachmentInput{
			StorageKey:       key,
			OriginalFilename: name,
			SizeBytes:        obj.SizeBytes,
			MimeType:         obj.ContentType,
		})
	}
	if err := s.attachments.Validate(resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

func normalizeMime(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func invalidAttachment(field, reason string) error {
	return apperrors.NewValidationError("invalid attachment", map[string]any{field: reason})
}
