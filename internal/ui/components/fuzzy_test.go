// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import "testing"

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		query   string
		target  string
		matched bool
	}{
		{"sv", "/save", true},
		{"hlp", "/help", true},
		{"xyz", "/save", false},
		{"", "/anything", true},
		{"toolong", "/x", false},
		{"EXP", "/export", true}, // case-insensitive
	}

	for _, tt := range tests {
		if _, matched := FuzzyMatch(tt.query, tt.target); matched != tt.matched {
			t.Errorf("FuzzyMatch(%q, %q) matched = %v, want %v",
				tt.query, tt.target, matched, tt.matched)
		}
	}
}

func TestFuzzyMatch_PrefersConsecutive(t *testing.T) {
	consec, _ := FuzzyMatch("sa", "/save")
	spread, _ := FuzzyMatch("sa", "/search-all")
	if consec <= spread {
		t.Errorf("consecutive match should score higher: %d vs %d", consec, spread)
	}
}

func TestFuzzyFilter_SortsByScore(t *testing.T) {
	got := FuzzyFilter("sa", []string{"/search", "/save", "/ask"})
	if len(got) < 2 {
		t.Fatalf("matches = %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("not sorted by score: %v", got)
		}
	}
}

func TestHighlightMatch(t *testing.T) {
	positions := HighlightMatch("sv", "/save")
	if len(positions) != 2 {
		t.Fatalf("positions = %v", positions)
	}
	// "/save": s at 1, v at 4
	if positions[0] != 1 || positions[1] != 4 {
		t.Errorf("positions = %v, want [1 4]", positions)
	}
}
