// Package match scores candidate repositories against a work item's text.
package match

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/clintrovert/gantry/pkg/types"
)

// Matcher picks the repository best suited to a work item, or nil when no
// candidate clears the configured bar.
type Matcher interface {
	FindSuitable(ctx context.Context, item *types.WorkItem, catalog []types.Repository) (*types.Repository, error)
}

// stop words excluded from keyword extraction.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "when": true, "then": true,
	"should": true, "would": true, "could": true, "have": true, "been": true,
	"will": true, "need": true, "needs": true, "must": true, "does": true,
	"doesn't": true, "about": true, "after": true, "before": true,
	"where": true, "which": true, "while": true, "their": true, "there": true,
}

// KeywordMatcher scores each active repository by the fraction of the
// item's keywords found as substrings of the repository's name and
// description. Ties go to the first-seen repository, so catalog order is
// part of the contract.
type KeywordMatcher struct {
	// MinKeywordMatches is the number of keywords a repository must match
	// to be considered suitable. Zero reproduces the legacy always-assign
	// behavior where any non-empty catalog yields a match.
	MinKeywordMatches int

	logger *zap.Logger
}

// NewKeywordMatcher creates a KeywordMatcher requiring minMatches keyword
// hits before a repository counts as suitable.
func NewKeywordMatcher(minMatches int, logger *zap.Logger) *KeywordMatcher {
	return &KeywordMatcher{MinKeywordMatches: minMatches, logger: logger}
}

// FindSuitable implements Matcher.
func (m *KeywordMatcher) FindSuitable(_ context.Context, item *types.WorkItem, catalog []types.Repository) (*types.Repository, error) {
	keywords := ExtractKeywords(item.Title + " " + item.Description)

	var (
		best        *types.Repository
		bestScore   = -1.0
		bestMatches = -1
	)
	for i := range catalog {
		repo := &catalog[i]
		if !repo.Active {
			continue
		}

		haystack := strings.ToLower(repo.Name + " " + repo.Description)
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				matches++
			}
		}

		denom := len(keywords)
		if denom < 1 {
			denom = 1
		}
		score := float64(matches) / float64(denom)
		if score > bestScore {
			best = repo
			bestScore = score
			bestMatches = matches
		}
	}

	if best == nil || bestMatches < m.MinKeywordMatches {
		return nil, nil
	}

	m.logger.Debug("matched repository",
		zap.String("external_key", item.ExternalKey),
		zap.String("repository", best.Name),
		zap.Float64("score", bestScore),
		zap.Int("keyword_matches", bestMatches),
	)
	return best, nil
}

// ExtractKeywords lower-cases text, splits on whitespace, strips trailing
// punctuation, drops stop words and tokens of length <= 3, and dedupes
// preserving first-seen order.
func ExtractKeywords(text string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.TrimRight(tok, ".,;:!?)\"'")
		if len(tok) <= 3 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}
