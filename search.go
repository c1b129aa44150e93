package main

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ============================================================================
// Fuzzy Name Search
// ============================================================================

// AutocompleteLimit is Discord's cap on autocomplete choices.
const AutocompleteLimit = 25

// SearchEmojis ranks emojis by case-insensitive fuzzy match against
// query, best first, ties keeping input order. An empty query returns the
// input unfiltered.
func SearchEmojis(query string, emojis []*PersonalEmoji) []*PersonalEmoji {
	query = strings.TrimSpace(query)
	if query == "" {
		results := make([]*PersonalEmoji, len(emojis))
		copy(results, emojis)
		return results
	}

	names := make([]string, len(emojis))
	for i, e := range emojis {
		names[i] = strings.ToLower(e.Name)
	}

	matches := fuzzy.RankFindFold(query, names)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	results := make([]*PersonalEmoji, 0, len(matches))
	for _, match := range matches {
		results = append(results, emojis[match.OriginalIndex])
	}
	return results
}
