package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/search"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	MinQueryLength = 2

	DefaultPageSize = 20
	MaxPageSize     = 50

	descriptionPreviewLength = 200
	replyExcerptLength       = 160
	suggestedTicketLimit     = 5
	suggestedKeywordLimit    = 3
)

// SearchFilters are optional structured conditions, ANDed with the text
// match. An AssignedTo pointing at an empty string selects unassigned
// tickets.
type SearchFilters struct {
	Category   *domain.TicketCategory
	Priority   *domain.TicketPriority
	Status     *domain.TicketStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	AssignedTo *string
	CustomerID *string
}

// SearchInput is one search request.
type SearchInput struct {
	Query    string
	Scope    search.Scope
	Filters  SearchFilters
	Page     int
	PageSize int
}

// PersonInfo is the display data of a user shown next to a ticket.
type PersonInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SearchItem is one ranked hit. Title, Description and ReplyExcerpt are
// HTML-escaped with <mark> highlighting.
type SearchItem struct {
	TicketID       string                `json:"ticket_id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Category       domain.TicketCategory `json:"category"`
	Priority       domain.TicketPriority `json:"priority"`
	Status         domain.TicketStatus   `json:"status"`
	Customer       PersonInfo            `json:"customer"`
	AssigneeName   string                `json:"assignee_name,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	LastActivity   time.Time             `json:"last_activity"`
	RelevanceScore int                   `json:"relevance_score"`
	ReplyExcerpt   string                `json:"reply_excerpt,omitempty"`
	ReplyAuthor    string                `json:"reply_author,omitempty"`
}

// TicketSuggestion points at a ticket with a similar title.
type TicketSuggestion struct {
	TicketID string `json:"ticket_id"`
	Title    string `json:"title"`
}

// Suggestions are offered when a search matched nothing.
type Suggestions struct {
	Tickets  []TicketSuggestion `json:"tickets"`
	Keywords []string           `json:"keywords"`
}

// SearchResult is one page of ranked hits.
type SearchResult struct {
	Items       []SearchItem `json:"items"`
	Total       int          `json:"total"`
	HasMore     bool         `json:"has_more"`
	Page        int          `json:"page"`
	PageSize    int          `json:"page_size"`
	Suggestions Suggestions  `json:"suggestions"`
}

// SearchService runs relevance-ranked ticket search.
type SearchService struct {
	store           repository.Reader
	logger          *zap.Logger
	defaultPageSize int
	maxPageSize     int
}

// SearchDependencies bundles collaborators for the search service.
type SearchDependencies struct {
	Store           repository.Reader
	Logger          *zap.Logger
	DefaultPageSize int
	MaxPageSize     int
}

// NewSearchService constructs the service.
func NewSearchService(deps SearchDependencies) *SearchService {
	s := &SearchService{
		store:           deps.Store,
		logger:          deps.Logger,
		defaultPageSize: deps.DefaultPageSize,
		maxPageSize:     deps.MaxPageSize,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.defaultPageSize <= 0 {
		s.defaultPageSize = DefaultPageSize
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = MaxPageSize
	}
	if s.defaultPageSize > s.maxPageSize {
		s.defaultPageSize = s.maxPageSize
	}
	return s
}

type rankedTicket struct {
	ticket domain.Ticket
	score  int
	reply  *domain.TicketReply
}

// Search matches, ranks and paginates the tickets visible to p. Errors are
// always returned together with an empty, non-nil result.
func (s *SearchService) Search(ctx context.Context, p domain.Principal, input SearchInput) (*SearchResult, error) {
	page, pageSize := s.paging(input.Page, input.PageSize)
	result := emptyResult(page, pageSize)

	query := strings.TrimSpace(input.Query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return result, apperrors.NewValidationError("query is too short", map[string]any{
			"query": "must be at least 2 characters",
		})
	}
	scope := input.Scope
	if scope == "" {
		scope = search.ScopeAll
	}
	if !scope.Valid() {
		return result, apperrors.NewValidationError("unknown search scope", map[string]any{"scope": string(scope)})
	}
	filters, err := filterClauses(p, input.Filters)
	if err != nil {
		return result, err
	}

	tickets, err := s.store.QueryTickets(ctx, scoped(p).And(matchClause(p, query, scope)).And(filters...))
	if err != nil {
		return result, s.storageFailed("search", p, err)
	}

	ranked, err := s.rank(ctx, p, tickets, query, scope)
	if err != nil {
		return result, s.storageFailed("search", p, err)
	}
	result.Total = len(ranked)
	if result.Total == 0 {
		if result.Suggestions, err = s.suggest(ctx, p, query); err != nil {
			return emptyResult(page, pageSize), s.storageFailed("search_suggestions", p, err)
		}
		return result, nil
	}

	start := len(ranked)
	// Compared by division so huge page numbers cannot overflow.
	if page-1 <= len(ranked)/pageSize {
		start = min((page-1)*pageSize, len(ranked))
	}
	end := start + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	result.HasMore = end < len(ranked)
	if result.Items, err = s.items(ctx, ranked[start:end], query); err != nil {
		return emptyResult(page, pageSize), s.storageFailed("search", p, err)
	}
	return result, nil
}

func (s *SearchService) paging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	return page, pageSize
}

func emptyResult(page, pageSize int) *SearchResult {
	return &SearchResult{
		Items:       []SearchItem{},
		Page:        page,
		PageSize:    pageSize,
		Suggestions: Suggestions{Tickets: []TicketSuggestion{}, Keywords: []string{}},
	}
}

// scoped starts a query restricted to the tickets the principal may see.
func scoped(p domain.Principal) repository.TicketQuery {
	if id := policy.ScopeCustomerID(p); id != nil {
		return repository.TicketQuery{Where: []repository.Clause{repository.Eq(repository.FieldCustomerID, *id)}}
	}
	return repository.TicketQuery{}
}

func matchClause(p domain.Principal, query string, scope search.Scope) repository.Clause {
	var alternatives repository.AnyOf
	if scope.IncludesTitles() {
		alternatives = append(alternatives, repository.Contains(repository.FieldTitle, query))
	}
	if scope.IncludesDescriptions() {
		alternatives = append(alternatives, repository.Contains(repository.FieldDescription, query))
	}
	if scope.IncludesReplies() {
		alternatives = append(alternatives, repository.ReplyContains{Term: query, IncludeInternal: p.IsAdmin()})
	}
	if len(alternatives) == 1 {
		return alternatives[0]
	}
	return alternatives
}

func filterClauses(p domain.Principal, f SearchFilters) ([]repository.Clause, error) {
	var clauses []repository.Clause
	details := map[string]any{}
	if f.Category != nil {
		if !f.Category.Valid() {
			details["category"] = "unknown category"
		}
		clauses = append(clauses, repository.Eq(repository.FieldCategory, string(*f.Category)))
	}
	if f.Priority != nil {
		if !f.Priority.Valid() {
			details["priority"] = "unknown priority"
		}
		clauses = append(clauses, repository.Eq(repository.FieldPriority, string(*f.Priority)))
	}
	if f.Status != nil {
		if !f.Status.Valid() {
			details["status"] = "unknown status"
		}
		clauses = append(clauses, repository.Eq(repository.FieldStatus, string(*f.Status)))
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		details["date_to"] = "must not be before date_from"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid search filters", details)
	}
	if f.DateFrom != nil {
		clauses = append(clauses, repository.OnOrAfter(repository.FieldCreatedAt, *f.DateFrom))
	}
	if f.DateTo != nil {
		clauses = append(clauses, repository.OnOrBefore(repository.FieldCreatedAt, *f.DateTo))
	}
	if f.AssignedTo != nil {
		if *f.AssignedTo == "" {
			clauses = append(clauses, repository.IsNull(repository.FieldAssignedTo))
		} else {
			clauses = append(clauses, repository.Eq(repository.FieldAssignedTo, *f.AssignedTo))
		}
	}
	// Customers are already pinned to their own id by scoped.
	if f.CustomerID != nil && p.IsAdmin() {
		clauses = append(clauses, repository.Eq(repository.FieldCustomerID, *f.CustomerID))
	}
	return clauses, nil
}

// rank scores every matched ticket and orders them by score, then most
// recent activity, then id.
func (s *SearchService) rank(ctx context.Context, p domain.Principal, tickets []domain.Ticket, query string, scope search.Scope) ([]rankedTicket, error) {
	ranked := make([]rankedTicket, 0, len(tickets))
	var replyOnly []string
	for _, t := range tickets {
		score := search.Score(search.Candidate{Title: t.Title, Description: t.Description}, query, scope)
		if score == search.ScoreNoMatch {
			replyOnly = append(replyOnly, t.ID)
		}
		ranked = append(ranked, rankedTicket{ticket: t, score: score})
	}

	if len(replyOnly) > 0 && scope.IncludesReplies() {
		replies, err := s.store.QueryReplies(ctx, repository.ReplyQuery{
			TicketIDs:       replyOnly,
			ContentContains: query,
			IncludeInternal: p.IsAdmin(),
		})
		if err != nil {
			return nil, err
		}
		first := map[string]*domain.TicketReply{}
		for i := range replies {
			r := &replies[i]
			if !policy.CanSeeReply(p, r) {
				continue
			}
			if _, ok := first[r.TicketID]; !ok {
				first[r.TicketID] = r
			}
		}
		for i := range ranked {
			if reply, ok := first[ranked[i].ticket.ID]; ok && ranked[i].score == search.ScoreNoMatch {
				ranked[i].reply = reply
				ranked[i].score = search.Score(search.Candidate{
					Title:        ranked[i].ticket.Title,
					Description:  ranked[i].ticket.Description,
					ReplyMatched: true,
				}, query, scope)
			}
		}
	}

	// A ticket can only score zero here if its matching reply was committed
	// or hidden between the two reads; it no longer matches.
	kept := ranked[:0]
	for _, r := range ranked {
		if r.score > search.ScoreNoMatch {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.ticket.LastActivity.Equal(b.ticket.LastActivity) {
			return a.ticket.LastActivity.After(b.ticket.LastActivity)
		}
		return a.ticket.ID < b.ticket.ID
	})
	return kept, nil
}

func (s *SearchService) items(ctx context.Context, page []rankedTicket, query string) ([]SearchItem, error) {
	var ids []string
	for _, r := range page {
		ids = append(ids, r.ticket.CustomerID)
		if r.ticket.AssignedTo != nil {
			ids = append(ids, *r.ticket.AssignedTo)
		}
		if r.reply != nil {
			ids = append(ids, r.reply.AuthorID)
		}
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	name := func(id string) string {
		if u, ok := users[id]; ok && u.Name != "" {
			return u.Name
		}
		return id
	}

	items := make([]SearchItem, 0, len(page))
	for _, r := range page {
		t := r.ticket
		customer := users[t.CustomerID]
		item := SearchItem{
			TicketID:       t.ID,
			Title:          search.Highlight(t.Title, query),
			Description:    search.Highlight(search.Truncate(t.Description, descriptionPreviewLength), query),
			Category:       t.Category,
			Priority:       t.Priority,
			Status:         t.Status,
			Customer:       PersonInfo{ID: t.CustomerID, Name: name(t.CustomerID), Email: customer.Email},
			CreatedAt:      t.CreatedAt,
			LastActivity:   t.LastActivity,
			RelevanceScore: r.score,
		}
		if t.AssignedTo != nil {
			item.AssigneeName = name(*t.AssignedTo)
		}
		if r.reply != nil {
			item.ReplyExcerpt = search.Highlight(search.Excerpt(r.reply.Content, query, replyExcerptLength), query)
			item.ReplyAuthor = name(r.reply.AuthorID)
		}
		items = append(items, item)
	}
	return items, nil
}

// suggest ignores structured filters but keeps the role scope.
func (s *SearchService) suggest(ctx context.Context, p domain.Principal, query string) (Suggestions, error) {
	out := Suggestions{Tickets: []TicketSuggestion{}, Keywords: []string{}}

	similar := scoped(p).And(repository.Contains(repository.FieldTitle, query))
	similar.Limit = suggestedTicketLimit
	tickets, err := s.store.QueryTickets(ctx, similar)
	if err != nil {
		return out, err
	}
	for _, t := range tickets {
		out.Tickets = append(out.Tickets, TicketSuggestion{TicketID: t.ID, Title: t.Title})
	}

	keywords, err := mineKeywords(ctx, s.store, p, query, suggestedKeywordLimit)
	if err != nil {
		return out, err
	}
	out.Keywords = append(out.Keywords, keywords...)
	return out, nil
}

// mineKeywords collects frequent words from role-scoped descriptions that
// contain the query.
func mineKeywords(ctx context.Context, store repository.Reader, p domain.Principal, query string, limit int) ([]string, error) {
	tickets, err := store.QueryTickets(ctx, scoped(p).And(repository.Contains(repository.FieldDescription, query)))
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(tickets))
	for _, t := range tickets {
		texts = append(texts, t.Description)
	}
	return search.Keywords(texts, query, limit), nil
}

func (s *SearchService) storageFailed(op string, p domain.Principal, err error) error {
	s.logger.Error("search failed", zap.String("op", op), zap.String("actor_id", p.ID), zap.Error(err))
	return apperrors.NewStorageError(err)
}
