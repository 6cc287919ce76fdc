package search

// Scope selects which ticket fields a free-text query is matched against.
type Scope string

const (
	ScopeAll          Scope = "all"
	ScopeTitles       Scope = "titles"
	ScopeDescriptions Scope = "descriptions"
	ScopeReplies      Scope = "replies"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeAll, ScopeTitles, ScopeDescriptions, ScopeReplies:
		return true
	}
	return false
}

func (s Scope) IncludesTitles() bool {
	return s == ScopeAll || s == ScopeTitles
}

func (s Scope) IncludesDescriptions() bool {
	return s == ScopeAll || s == ScopeDescriptions
}

func (s Scope) IncludesReplies() bool {
	return s == ScopeAll || s == ScopeReplies
}

// Relevance tiers, highest first.
const (
	ScoreTitleWord       = 10
	ScoreTitleSubstring  = 8
	ScoreDescriptionWord = 6
	ScoreDescriptionSub  = 4
	ScoreReplyOnly       = 2
	ScoreNoMatch         = 0
)

// Candidate is the text of one ticket considered for ranking.
type Candidate struct {
	Title        string
	Description  string
	ReplyMatched bool
}

// Score assigns the relevance tier of a candidate. Only fields inside scope
// contribute.
func Score(c Candidate, query string, scope Scope) int {
	if scope.IncludesTitles() {
		if ContainsWord(c.Title, query) {
			return ScoreTitleWord
		}
		if ContainsFold(c.Title, query) {
			return ScoreTitleSubstring
		}
	}
	if scope.IncludesDescriptions() {
		if ContainsWord(c.Description, query) {
			return ScoreDescriptionWord
		}
		if ContainsFold(c.Description, query) {
			return ScoreDescriptionSub
		}
	}
	if scope.IncludesReplies() && c.ReplyMatched {
		return ScoreReplyOnly
	}
	return ScoreNoMatch
}
