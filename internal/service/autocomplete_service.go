package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/search"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// SuggestionType tags the category of an autocomplete suggestion.
type SuggestionType string

const (
	SuggestionTicket   SuggestionType = "ticket"
	SuggestionCustomer SuggestionType = "customer"
	SuggestionCategory SuggestionType = "category"
	SuggestionStatus   SuggestionType = "status"
	SuggestionPriority SuggestionType = "priority"
	SuggestionKeyword  SuggestionType = "keyword"
)

const (
	MaxSuggestions = 10

	ticketSuggestionLimit   = 5
	customerSuggestionLimit = 3
	keywordSuggestionLimit  = 3
)

var suggestionIcons = map[SuggestionType]string{
	SuggestionTicket:   "ticket",
	SuggestionCustomer: "user",
	SuggestionCategory: "folder",
	SuggestionStatus:   "flag",
	SuggestionPriority: "alert",
	SuggestionKeyword:  "search",
}

// Suggestion is one autocomplete entry. Value is what a client submits when
// the entry is picked: a ticket or user id, an enum value or the keyword.
type Suggestion struct {
	Type  SuggestionType `json:"type"`
	Label string         `json:"label"`
	Icon  string         `json:"icon"`
	Value string         `json:"value"`
}

// SuggestionCache stores encoded suggestion lists for a short time.
type SuggestionCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// AutocompleteService builds typeahead suggestions.
type AutocompleteService struct {
	store    repository.Reader
	cache    SuggestionCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// AutocompleteDependencies bundles collaborators for autocomplete. A nil
// Cache or zero CacheTTL disables caching.
type AutocompleteDependencies struct {
	Store    repository.Reader
	Cache    SuggestionCache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewAutocompleteService constructs the service.
func NewAutocompleteService(deps AutocompleteDependencies) *AutocompleteService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutocompleteService{
		store:    deps.Store,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		logger:   logger,
	}
}

// Autocomplete returns at most MaxSuggestions entries. Category order is the
// ranking: tickets, customers (admins only), categories, statuses,
// priorities, keywords.
func (s *AutocompleteService) Autocomplete(ctx context.Context, p domain.Principal, term string) ([]Suggestion, error) {
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < MinQueryLength {
		return []Suggestion{}, nil
	}

	key := cacheKey(p, term)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	suggestions, err := s.build(ctx, p, term)
	if err != nil {
		s.logger.Error("autocomplete failed", zap.String("actor_id", p.ID), zap.Error(err))
		return []Suggestion{}, apperrors.NewStorageError(err)
	}
	s.remember(ctx, key, suggestions)
	return suggestions, nil
}

func (s *AutocompleteService) build(ctx context.Context, p domain.Principal, term string) ([]Suggestion, error) {
	out := make([]Suggestion, 0, MaxSuggestions)

	titles := scoped(p).And(repository.Contains(repository.FieldTitle, term))
	titles.Limit = ticketSuggestionLimit
	tickets, err := s.store.QueryTickets(ctx, titles)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		out = append(out, suggestion(SuggestionTicket, t.Title, t.ID))
	}

	if p.IsAdmin() {
		role := domain.RoleCustomer
		customers, err := s.store.QueryUsers(ctx, repository.UserQuery{
			Role:                &role,
			NameOrEmailContains: term,
			Limit:               customerSuggestionLimit,
		})
		if err != nil {
			return nil, err
		}
		for _, u := range customers {
			out = append(out, suggestion(SuggestionCustomer, fmt.Sprintf("%s <%s>", u.Name, u.Email), u.ID))
		}
	}

	for _, c := range domain.TicketCategories {
		if enumMatches(string(c), c.Label(), term) {
			out = append(out, suggestion(SuggestionCategory, c.Label(), string(c)))
		}
	}
	for _, st := range domain.TicketStatuses {
		if enumMatches(string(st), st.Label(), term) {
			out = append(out, suggestion(SuggestionStatus, st.Label(), string(st)))
		}
	}
	for _, pr := range domain.TicketPriorities {
		if enumMatches(string(pr), pr.Label(), term) {
			out = append(out, suggestion(SuggestionPriority, pr.Label(), string(pr)))
		}
	}

	keywords, err := mineKeywords(ctx, s.store, p, term, keywordSuggestionLimit)
	if err != nil {
		return nil, err
	}
	for _, k := range keywords {
		out = append(out, suggestion(SuggestionKeyword, k, k))
	}

	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out, nil
}

func suggestion(t SuggestionType, label, value string) Suggestion {
	return Suggestion{Type: t, Label: label, Icon: suggestionIcons[t], Value: value}
}

func enumMatches(value, label, term string) bool {
	return search.ContainsFold(label, term) || search.ContainsFold(value, term)
}

// cacheKey separates admins, who share one view, from each customer.
func cacheKey(p domain.Principal, term string) string {
	scope := "admin"
	if !p.IsAdmin() {
		scope = "customer:" + p.ID
	}
	return "autocomplete:" + scope + ":" + strings.ToLower(term)
}

func (s *AutocompleteService) cached(ctx context.Context, key string) ([]Suggestion, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("autocomplete cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var suggestions []Suggestion
	if err := json.Unmarshal(raw, &suggestions); err != nil {
		s.logger.Warn("autocomplete cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return suggestions, true
}

func (s *AutocompleteService) remember(ctx context.Context, key string, suggestions []Suggestion) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(suggestions)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger.Warn("autocomplete cache write failed", zap.String("key", key), zap.Error(err))
	}
}
