package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/filestore"
	"github.com/spec-kit/helpdesk/internal/repository/memstore"
)

var (
	t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

	admin    = domain.Principal{ID: "admin-1", Role: domain.RoleAdmin}
	admin2   = domain.Principal{ID: "admin-2", Role: domain.RoleAdmin, Name: "Bob Boss"}
	customer = domain.Principal{ID: "c1", Role: domain.RoleCustomer}
	other    = domain.Principal{ID: "c2", Role: domain.RoleCustomer}
)

func strPtr(s string) *string { return &s }

func fixtureUsers() []domain.User {
	return []domain.User{
		{ID: "admin-1", Role: domain.RoleAdmin, Name: "Ada Admin", Email: "ada@helpdesk.test"},
		{ID: "admin-2", Role: domain.RoleAdmin, Name: "Bob Boss", Email: "bob@helpdesk.test"},
		{ID: "c1", Role: domain.RoleCustomer, Name: "Carl Customer", Email: "carl@example.com"},
		{ID: "c2", Role: domain.RoleCustomer, Name: "Dana Doe", Email: "dana@example.com"},
	}
}

func newStore(tickets ...domain.Ticket) *memstore.Store {
	store := memstore.New()
	store.PutUsers(fixtureUsers()...)
	store.PutTickets(tickets...)
	return store
}

func ticket(id string, status domain.TicketStatus, customerID string, assignee *string) domain.Ticket {
	return domain.Ticket{
		ID:           id,
		Title:        "Printer on fire " + id,
		Description:  "The office printer is on fire again",
		Category:     domain.TicketCategoryTechnical,
		Priority:     domain.TicketPriorityHigh,
		Status:       status,
		CustomerID:   customerID,
		AssignedTo:   assignee,
		CreatedAt:    t0,
		UpdatedAt:    t0,
		LastActivity: t0,
	}
}

// stepClock returns a clock that advances one minute per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func newWorkflow(t *testing.T, store *memstore.Store) (*WorkflowService, *eventLog) {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher()
	log := &eventLog{}
	events.SubscribeAll(dispatcher, log.handle)
	svc := NewWorkflowService(WorkflowDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Clock:      stepClock(),
		Attachments: AttachmentRules{
			MaxBytes:         1024,
			AllowedMimeTypes: []string{"image/png", "text/plain"},
		},
		Files: fixtureFiles(),
	})
	return svc, log
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

func pngOf(size int) []byte {
	return append(append([]byte(nil), pngHeader...), bytes.Repeat([]byte{0}, size-len(pngHeader))...)
}

// fixtureFiles holds the uploads the workflow tests reference by key.
func fixtureFiles() *filestore.MemoryStore {
	files := filestore.NewMemoryStore()
	files.Put("k1", pngOf(512), filestore.Metadata{Filename: "screen.png", UploadedBy: "c1"})
	files.Put("k", []byte("stack trace goes here"), filestore.Metadata{Filename: "log.txt", UploadedBy: "c1"})
	files.Put("k-int", []byte("internal notes"), filestore.Metadata{Filename: "notes.txt", UploadedBy: "admin-1"})
	files.Put("k-big", pngOf(4096), filestore.Metadata{Filename: "huge.png", UploadedBy: "c1"})
	files.Put("k-pdf", []byte("%PDF-1.4\n%fake"), filestore.Metadata{Filename: "doc.pdf", UploadedBy: "c1"})
	files.Put("k-c2", []byte("someone else's log"), filestore.Metadata{Filename: "theirs.txt", UploadedBy: "c2"})
	return files
}

// recordSteps makes the store report every write step it performs.
func recordSteps(store *memstore.Store) func() []string {
	var mu sync.Mutex
	var steps []string
	store.SetFailFunc(func(step string) error {
		mu.Lock()
		defer mu.Unlock()
		steps = append(steps, step)
		return nil
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), steps...)
	}
}

func failAt(store *memstore.Store, at string, err error) {
	store.SetFailFunc(func(step string) error {
		if step == at {
			return err
		}
		return nil
	})
}
