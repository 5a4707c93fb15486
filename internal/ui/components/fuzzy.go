// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"sort"
	"strings"
	"unicode"
)

// =============================================================================
// FUZZY MATCHING
// =============================================================================

// FuzzyMatch performs fuzzy matching between a query and a target
// string, returning a score (higher is better) and whether the match
// succeeded. Every query character must appear in order in the target;
// consecutive matches, word boundaries, and start-of-string matches
// score higher. Matching is case-insensitive with a small bonus for
// exact case.
func FuzzyMatch(query, target string) (score int, matched bool) {
	if query == "" {
		return 0, true
	}

	queryRunes := []rune(strings.ToLower(query))
	targetRunes := []rune(strings.ToLower(target))
	if len(queryRunes) > len(targetRunes) {
		return 0, false
	}

	targetOrig := []rune(target)
	queryOrig := []rune(query)

	queryPos := 0
	lastMatch := -1

	for targetPos := 0; targetPos < len(targetRunes) && queryPos < len(queryRunes); targetPos++ {
		if targetRunes[targetPos] != queryRunes[queryPos] {
			continue
		}

		matchScore := 1
		if lastMatch == targetPos-1 {
			matchScore += 5
		}
		if targetPos == 0 {
			matchScore += 10
		}
		if isWordBoundary(targetRunes, targetPos) {
			matchScore += 7
		}
		if targetOrig[targetPos] == queryOrig[queryPos] {
			matchScore += 2
		}

		score += matchScore
		lastMatch = targetPos
		queryPos++
	}

	matched = queryPos == len(queryRunes)
	if matched {
		// Shorter targets are better matches.
		score -= len(targetRunes) / 4
	}
	return score, matched
}

// isWordBoundary reports whether pos starts a word: after a separator
// or at a camelCase transition.
func isWordBoundary(runes []rune, pos int) bool {
	if pos == 0 {
		return true
	}
	if pos >= len(runes) {
		return false
	}

	prev := runes[pos-1]
	if prev == ' ' || prev == '/' || prev == '-' || prev == '_' {
		return true
	}
	return unicode.IsLower(prev) && unicode.IsUpper(runes[pos])
}

// =============================================================================
// SCORED MATCH
// =============================================================================

// ScoredMatch is a fuzzy match result with its score.
type ScoredMatch struct {
	Target string
	Score  int
}

// FuzzyFilter filters targets by fuzzy match, sorted by score
// (highest first).
func FuzzyFilter(query string, targets []string) []ScoredMatch {
	var matches []ScoredMatch
	for _, target := range targets {
		if score, ok := FuzzyMatch(query, target); ok {
			matches = append(matches, ScoredMatch{Target: target, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// HighlightMatch returns the rune positions in target matched by query,
// for styled completion rendering.
func HighlightMatch(query, target string) (positions []int) {
	if query == "" {
		return nil
	}

	queryRunes := []rune(strings.ToLower(query))
	targetRunes := []rune(strings.ToLower(target))

	queryPos := 0
	for targetPos := 0; targetPos < len(targetRunes) && queryPos < len(queryRunes); targetPos++ {
		if targetRunes[targetPos] == queryRunes[queryPos] {
			positions = append(positions, targetPos)
			queryPos++
		}
	}
	return positions
}
