package filestore

import (
	"context"
	"sync"
)

// MemoryStore keeps files in process memory. Used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	obj  Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Store(ctx context.Context, data []byte, meta Metadata) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	obj := Object{
		Key:         NewKey(meta.Filename),
		Filename:    CleanFilename(meta.Filename),
		ContentType: DetectContentType(data),
		SizeBytes:   int64(len(data)),
		UploadedBy:  meta.UploadedBy,
	}
	s.put(obj, data)
	return obj, nil
}

// Put stores data under a caller-chosen key. Used to seed fixtures.
func (s *MemoryStore) Put(key string, data []byte, meta Metadata) Object {
	obj := Object{
		Key:         key,
		Filename:    CleanFilename(meta.Filename),
		ContentType: DetectContentType(data),
		SizeBytes:   int64(len(data)),
		UploadedBy:  meta.UploadedBy,
	}
	s.put(obj, data)
	return obj
}

func (s *MemoryStore) put(obj Object, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.Key] = memoryObject{data: append([]byte(nil), data...), obj: obj}
}

func (s *MemoryStore) Retrieve(ctx context.Context, key string) ([]byte, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.objects[key]
	if !ok {
		return nil, Object{}, ErrNotFound
	}
	return append([]byte(nil), stored.data...), stored.obj, nil
}

func (s *MemoryStore) Stat(ctx context.Context, key string) (Object, error) {
	_, obj, err := s.Retrieve(ctx, key)
	return obj, err
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
