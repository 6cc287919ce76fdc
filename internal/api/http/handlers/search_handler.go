package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/search"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	dateLayout = "2006-01-02"
	// unassignedFilter selects tickets without an assignee.
	unassignedFilter = "unassigned"
)

// SearchHandler serves search and autocomplete.
type SearchHandler struct {
	search       *service.SearchService
	autocomplete *service.AutocompleteService
}

// NewSearchHandler constructs handler.
func NewSearchHandler(searchService *service.SearchService, autocompleteService *service.AutocompleteService) *SearchHandler {
	return &SearchHandler{search: searchService, autocomplete: autocompleteService}
}

// Search GET /search.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	input, err := parseSearchInput(c)
	if err != nil {
		return err
	}
	result, err := h.search.Search(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Autocomplete GET /autocomplete.
func (h *SearchHandler) Autocomplete(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	suggestions, err := h.autocomplete.Autocomplete(c.UserContext(), principal, c.Query("q"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": suggestions})
}

func parseSearchInput(c *fiber.Ctx) (service.SearchInput, error) {
	input := service.SearchInput{
		Query:    c.Query("q"),
		Scope:    search.Scope(strings.ToLower(c.Query("scope"))),
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("page_size"), 0),
	}
	details := map[string]any{}

	f := &input.Filters
	if v := c.Query("category"); v != "" {
		category := domain.TicketCategory(strings.ToUpper(v))
		f.Category = &category
	}
	if v := c.Query("priority"); v != "" {
		priority := domain.TicketPriority(strings.ToUpper(v))
		f.Priority = &priority
	}
	if v := c.Query("status"); v != "" {
		status := domain.TicketStatus(strings.ToUpper(v))
		f.Status = &status
	}
	if v := c.Query("date_from"); v != "" {
		from, err := parseDate(v, false)
		if err != nil {
			details["date_from"] = "expected YYYY-MM-DD or RFC3339"
		}
		f.DateFrom = from
	}
	if v := c.Query("date_to"); v != "" {
		to, err := parseDate(v, true)
		if err != nil {
			details["date_to"] = "expected YYYY-MM-DD or RFC3339"
		}
		f.DateTo = to
	}
	if v := c.Query("assigned_to"); v != "" {
		if strings.EqualFold(v, unassignedFilter) {
			v = ""
		}
		f.AssignedTo = &v
	}
	if v := c.Query("customer_id"); v != "" {
		f.CustomerID = &v
	}

	if len(details) > 0 {
		return input, apperrors.NewValidationError("invalid search filters", details)
	}
	return input, nil
}

// parseDate accepts a calendar date or a full timestamp. A bare date used as
// an upper bound covers the whole day.
func parseDate(val string, endOfDay bool) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
