package filestore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	obj, err := store.Store(ctx, pngHeader, Metadata{Filename: "../../etc/Screen Shot.PNG", UploadedBy: "c1"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(obj.Key, ".png"))
	assert.Equal(t, "Screen Shot.PNG", obj.Filename)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(len(pngHeader)), obj.SizeBytes)

	data, got, err := store.Retrieve(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, obj, got)

	_, _, err = store.Retrieve(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreStatKeepsUploader(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	obj, err := store.Store(ctx, []byte("crash log"), Metadata{Filename: "log.txt", UploadedBy: "c1"})
	require.NoError(t, err)

	stat, err := store.Stat(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, "c1", stat.UploadedBy)
	assert.Equal(t, int64(9), stat.SizeBytes)
	assert.True(t, strings.HasPrefix(stat.ContentType, "text/plain"))

	seeded := store.Put("fixed-key.png", pngHeader, Metadata{Filename: "a.png", UploadedBy: "admin-1"})
	stat, err = store.Stat(ctx, "fixed-key.png")
	require.NoError(t, err)
	assert.Equal(t, seeded, stat)

	_, err = store.Stat(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", DetectContentType(pngHeader))
	assert.Equal(t, "application/pdf", DetectContentType([]byte("%PDF-1.4\n%...")))
	assert.True(t, strings.HasPrefix(DetectContentType([]byte("plain words")), "text/plain"))
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", CleanFilename(`C:\Users\me\report.pdf`))
	assert.Equal(t, "", CleanFilename("  "))
	assert.Equal(t, "", CleanFilename("/"))
}
