package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memstore"
	"github.com/spec-kit/helpdesk/internal/search"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func searchFixture() *memstore.Store {
	store := newStore(
		domain.Ticket{ID: "T1", Title: "Login Problem", Description: "I cannot sign in since the update",
			Category: domain.TicketCategoryTechnical, Priority: domain.TicketPriorityHigh, Status: domain.TicketStatusOpen,
			CustomerID: "c1", CreatedAt: t0, LastActivity: t0.Add(3 * time.Hour)},
		domain.Ticket{ID: "T2", Title: "relogin needed", Description: "Session expires every five minutes",
			Category: domain.TicketCategoryTechnical, Priority: domain.TicketPriorityLow, Status: domain.TicketStatusOpen,
			CustomerID: "c2", AssignedTo: strPtr("admin-1"), CreatedAt: t0.Add(time.Hour), LastActivity: t0.Add(2 * time.Hour)},
		domain.Ticket{ID: "T3", Title: "Billing question", Description: "Invoice shows a login fee twice",
			Category: domain.TicketCategoryBilling, Priority: domain.TicketPriorityMedium, Status: domain.TicketStatusResolved,
			CustomerID: "c1", CreatedAt: t0.Add(2 * time.Hour), LastActivity: t0.Add(time.Hour)},
	)
	store.PutReplies(
		domain.TicketReply{ID: "r1", TicketID: "T2", AuthorID: "admin-1", Content: "Escalated to the SSO vendor", IsInternal: true, CreatedAt: t0},
		domain.TicketReply{ID: "r2", TicketID: "T1", AuthorID: "admin-1", Content: "Please clear cookies & retry", CreatedAt: t0},
	)
	return store
}

func newSearch(store repository.Reader) *SearchService {
	return NewSearchService(SearchDependencies{Store: store})
}

func itemIDs(items []SearchItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.TicketID)
	}
	return out
}

func TestSearchTitleTiering(t *testing.T) {
	svc := newSearch(searchFixture())

	res, err := svc.Search(context.Background(), admin, SearchInput{Query: "login", Scope: search.ScopeTitles})
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, itemIDs(res.Items))
	assert.Equal(t, search.ScoreTitleWord, res.Items[0].RelevanceScore)
	assert.Equal(t, search.ScoreTitleSubstring, res.Items[1].RelevanceScore)
	assert.Equal(t, 2, res.Total)
	assert.False(t, res.HasMore)
	assert.Equal(t, "<mark>Login</mark> Problem", res.Items[0].Title)
	assert.Equal(t, "re<mark>login</mark> needed", res.Items[1].Title)
}

func TestSearchAllScopeRanksAcrossFields(t *testing.T) {
	svc := newSearch(searchFixture())

	res, err := svc.Search(context.Background(), admin, SearchInput{Query: "login"})
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2", "T3"}, itemIDs(res.Items))
	assert.Equal(t, search.ScoreDescriptionWord, res.Items[2].RelevanceScore)
	assert.Equal(t, "Invoice shows a <mark>login</mark> fee twice", res.Items[2].Description)
}

func TestSearchTiesBreakOnLastActivity(t *testing.T) {
	svc := newSearch(searchFixture())

	res, err := svc.Search(context.Background(), admin, SearchInput{Query: "in", Scope: search.ScopeTitles})
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2", "T3"}, itemIDs(res.Items))
	for _, it := range res.Items {
		assert.Equal(t, search.ScoreTitleSubstring, it.RelevanceScore)
	}
}

func TestSearchItemDisplayFields(t *testing.T) {
	svc := newSearch(searchFixture())

	res, err := svc.Search(context.Background(), admin, SearchInput{Query: "relogin"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, PersonInfo{ID: "c2", Name: "Dana Doe", Email: "dana@example.com"}, item.Customer)
	assert.Equal(t, "Ada Admin", item.AssigneeName)
	assert.Equal(t, domain.TicketStatusOpen, item.Status)
	assert.Equal(t, t0.Add(2*time.Hour), item.LastActivity)
	assert.Empty(t, item.ReplyExcerpt)
}

func TestSearchCustomerScope(t *testing.T) {
	ctx := context.Background()
	svc := newSearch(searchFixture())

	res, err := svc.Search(ctx, customer, SearchInput{Query: "login", Filters: SearchFilters{CustomerID: strPtr("c2")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T3"}, itemIDs(res.Items))
	for _, it := range res.Items {
		assert.Equal(t, "c1", it.Customer.ID)
	}

	// r1 on T2 is an internal note; its owner must not find it.
	res, err = svc.Search(ctx, other, SearchInput{Query: "vendor", Scope: search.ScopeReplies})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Zero(t, res.Total)
}

func TestSearchReplyOnlyMatch(t *testing.T) {
	ctx := context.Background()
	svc := newSearch(searchFixture())

	res, err := svc.Search(ctx, admin, SearchInput{Query: "vendor", Scope: search.ScopeReplies})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, "T2", item.TicketID)
	assert.Equal(t, search.ScoreReplyOnly, item.RelevanceScore)
	assert.Equal(t, "Escalated to the SSO <mark>vendor</mark>", item.ReplyExcerpt)
	assert.Equal(t, "Ada Admin", item.ReplyAuthor)

	res, err = svc.Search(ctx, customer, SearchInput{Query: "cookies"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Please clear <mark>cookies</mark> &amp; retry", res.Items[0].ReplyExcerpt)
}

func TestSearchFilters(t *testing.T) {
	from := t0.Add(30 * time.Minute)
	tests := []struct {
		name    string
		filters SearchFilters
		want    []string
	}{
		{name: "category", filters: SearchFilters{Category: ptrTo(domain.TicketCategoryBilling)}, want: []string{"T3"}},
		{name: "priority", filters: SearchFilters{Priority: ptrTo(domain.TicketPriorityLow)}, want: []string{"T2"}},
		{name: "status", filters: SearchFilters{Status: ptrTo(domain.TicketStatusOpen)}, want: []string{"T1", "T2"}},
		{name: "date range", filters: SearchFilters{DateFrom: &from, DateTo: ptrTo(t0.Add(90 * time.Minute))}, want: []string{"T2"}},
		{name: "assigned", filters: SearchFilters{AssignedTo: strPtr("admin-1")}, want: []string{"T2"}},
		{name: "unassigned", filters: SearchFilters{AssignedTo: strPtr("")}, want: []string{"T1", "T3"}},
		{name: "customer", filters: SearchFilters{CustomerID: strPtr("c1")}, want: []string{"T1", "T3"}},
		{name: "combined", filters: SearchFilters{CustomerID: strPtr("c1"), Status: ptrTo(domain.TicketStatusResolved)}, want: []string{"T3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newSearch(searchFixture())
			res, err := svc.Search(context.Background(), admin, SearchInput{Query: "login", Filters: tt.filters})
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(res.Items))
		})
	}
}

func TestSearchValidation(t *testing.T) {
	svc := newSearch(searchFixture())
	tests := []struct {
		name  string
		input SearchInput
	}{
		{name: "one character", input: SearchInput{Query: "x"}},
		{name: "padded single character", input: SearchInput{Query: "  x  "}},
		{name: "unknown scope", input: SearchInput{Query: "login", Scope: "everything"}},
		{name: "unknown status", input: SearchInput{Query: "login", Filters: SearchFilters{Status: ptrTo(domain.TicketStatus("LOST"))}}},
		{name: "inverted dates", input: SearchInput{Query: "login", Filters: SearchFilters{DateFrom: ptrTo(t0.Add(time.Hour)), DateTo: ptrTo(t0)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Search(context.Background(), admin, tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
			require.NotNil(t, res)
			assert.NotNil(t, res.Items)
			assert.Empty(t, res.Items)
			assert.Zero(t, res.Total)
		})
	}
}

func TestSearchPagination(t *testing.T) {
	ctx := context.Background()
	svc := newSearch(searchFixture())

	first, err := svc.Search(ctx, admin, SearchInput{Query: "in", Scope: search.ScopeTitles, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, itemIDs(first.Items))
	assert.Equal(t, 3, first.Total)
	assert.True(t, first.HasMore)

	second, err := svc.Search(ctx, admin, SearchInput{Query: "in", Scope: search.ScopeTitles, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"T3"}, itemIDs(second.Items))
	assert.False(t, second.HasMore)

	beyond, err := svc.Search(ctx, admin, SearchInput{Query: "in", Scope: search.ScopeTitles, Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 3, beyond.Total)
	assert.False(t, beyond.HasMore)

	for _, page := range []int{math.MaxInt, math.MaxInt/2 + 2} {
		huge, err := svc.Search(ctx, admin, SearchInput{Query: "in", Scope: search.ScopeTitles, Page: page, PageSize: 2})
		require.NoError(t, err)
		assert.Empty(t, huge.Items)
		assert.Equal(t, 3, huge.Total)
		assert.False(t, huge.HasMore)
		assert.Equal(t, page, huge.Page)
	}

	clamped, err := svc.Search(ctx, admin, SearchInput{Query: "in", PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, clamped.PageSize)

	defaulted, err := svc.Search(ctx, admin, SearchInput{Query: "in", Page: -3})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, defaulted.PageSize)
	assert.Equal(t, 1, defaulted.Page)
}

func TestSearchTruncatesDescription(t *testing.T) {
	long := "login " + strings.Repeat("abcdefghij", 30)
	store := newStore(domain.Ticket{ID: "L", Title: "Long one", Description: long, Status: domain.TicketStatusOpen, CustomerID: "c1"})
	svc := newSearch(store)

	res, err := svc.Search(context.Background(), admin, SearchInput{Query: "login", Scope: search.ScopeDescriptions})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	desc := res.Items[0].Description
	assert.True(t, strings.HasPrefix(desc, "<mark>login</mark> "))
	assert.True(t, strings.HasSuffix(desc, "..."))
	plain := strings.NewReplacer("<mark>", "", "</mark>", "").Replace(desc)
	assert.LessOrEqual(t, len([]rune(plain)), 200)
}

func TestSearchEmptyResultSuggestions(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing similar", func(t *testing.T) {
		svc := newSearch(searchFixture())
		res, err := svc.Search(ctx, admin, SearchInput{Query: "xylophone"})
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.NotNil(t, res.Suggestions.Tickets)
		assert.Empty(t, res.Suggestions.Tickets)
		assert.Empty(t, res.Suggestions.Keywords)
	})

	t.Run("filters excluded everything", func(t *testing.T) {
		svc := newSearch(searchFixture())
		res, err := svc.Search(ctx, admin, SearchInput{Query: "login", Filters: SearchFilters{Status: ptrTo(domain.TicketStatusClosed)}})
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.Equal(t, []TicketSuggestion{{TicketID: "T1", Title: "Login Problem"}, {TicketID: "T2", Title: "relogin needed"}}, res.Suggestions.Tickets)
		assert.Equal(t, []string{"login"}, res.Suggestions.Keywords)
	})

	t.Run("suggestions are capped", func(t *testing.T) {
		store := newStore()
		for i := 0; i < 8; i++ {
			store.PutTickets(domain.Ticket{
				ID:          fmt.Sprintf("x%d", i),
				Title:       fmt.Sprintf("xylophone tuning %d", i),
				Description: "xylophone xylophones xylophonesque xylophoneplayer",
				Status:      domain.TicketStatusOpen,
				CustomerID:  "c1",
			})
		}
		svc := newSearch(store)
		res, err := svc.Search(ctx, admin, SearchInput{Query: "xylophone", Filters: SearchFilters{Status: ptrTo(domain.TicketStatusClosed)}})
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.Len(t, res.Suggestions.Tickets, 5)
		assert.Equal(t, []string{"xylophone", "xylophoneplayer", "xylophones"}, res.Suggestions.Keywords)
	})

	t.Run("customer suggestions stay in scope", func(t *testing.T) {
		svc := newSearch(searchFixture())
		res, err := svc.Search(ctx, other, SearchInput{Query: "login", Filters: SearchFilters{Status: ptrTo(domain.TicketStatusClosed)}})
		require.NoError(t, err)
		assert.Equal(t, []TicketSuggestion{{TicketID: "T2", Title: "relogin needed"}}, res.Suggestions.Tickets)
		assert.Empty(t, res.Suggestions.Keywords)
	})
}

type failingReader struct {
	*memstore.Store
}

func (failingReader) QueryTickets(context.Context, repository.TicketQuery) ([]domain.Ticket, error) {
	return nil, errors.New("pool exhausted")
}

func TestSearchStorageFailure(t *testing.T) {
	svc := newSearch(failingReader{searchFixture()})

	res, err := svc.Search(context.Background(), admin, SearchInput{Query: "login"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorage))
	assert.Empty(t, res.Items)
}

func ptrTo[T any](v T) *T { return &v }
