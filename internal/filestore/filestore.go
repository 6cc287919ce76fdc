// Package filestore keeps attachment bytes outside the database. The
// workflow only ever sees the returned Object reference.
package filestore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("file not found")

// Metadata describes an upload.
type Metadata struct {
	Filename   string
	UploadedBy string
}

// Object references stored content. ContentType and SizeBytes are measured
// at upload time.
type Object struct {
	Key         string
	Filename    string
	ContentType string
	SizeBytes   int64
	UploadedBy  string
}

// Store is the file store collaborator.
type Store interface {
	Store(ctx context.Context, data []byte, meta Metadata) (Object, error)
	Retrieve(ctx context.Context, key string) ([]byte, Object, error)
	// Stat returns the object metadata without its content.
	Stat(ctx context.Context, key string) (Object, error)
	Ping(ctx context.Context) error
}

// DetectContentType sniffs the mime type from content; the client-supplied
// type is never trusted.
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

// NewKey returns an opaque storage key that keeps the file extension.
func NewKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(CleanFilename(filename)))
	if len(ext) > 10 {
		ext = ""
	}
	return uuid.NewString() + ext
}

// CleanFilename strips directories from a client supplied name.
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
