package learning

import (
	"fmt"
	"strings"
)

// Pattern keys. Preferences are keyed by one of these; the enhancer
// maps each key to an idempotent textual transform.
const (
	PatternShorterResponses = "shorter_responses"
	PatternLongerResponses  = "longer_responses"
	PatternAddGreeting      = "add_greeting"
	PatternDropGreeting     = "drop_greeting"
	PatternMoreFormal       = "more_formal"
	PatternLessFormal       = "less_formal"
	PatternPhraseSwap       = "phrase_swap"
)

// An edit must change at least this fraction of the text to count as a
// correction rather than a typo fix.
const minEditRatio = 0.1

// An edit that changes almost everything is a rewrite, not a pattern
// worth generalizing.
const maxEditRatio = 0.95

// lengthDelta is the character-count change that signals a length
// preference.
const lengthDelta = 20

var greetingWords = []string{"hello", "hi", "hey", "good morning", "good afternoon"}

var closingWords = []string{"regards", "best", "sincerely", "cheers"}

var informalIndicators = []string{"hey", "yeah", "gonna", "wanna", "lol", "btw"}

var formalIndicators = []string{"regards", "sincerely", "furthermore", "therefore", "kindly"}

// extractedPattern is one correction pattern read out of an edit.
type extractedPattern struct {
	Key   string
	Value string
}

// levenshtein computes the edit distance between two strings by runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 0
			if ca != cb {
				cost = 1
			}
			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// editRatio is the Levenshtein distance normalized by the longer
// string's length, 0 for identical texts.
func editRatio(original, edited string) float64 {
	longest := max(len([]rune(original)), len([]rune(edited)))
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(original, edited)) / float64(longest)
}

// nonTrivialEdit reports whether the edit is substantial enough to
// learn from but not a wholesale rewrite.
func nonTrivialEdit(ratio float64) bool {
	return ratio >= minEditRatio && ratio < maxEditRatio
}

// estimateFormality scores a text 0 (informal) to 1 (formal), 0.5 when
// no indicator is present.
func estimateFormality(text string) float64 {
	lower := strings.ToLower(text)
	var informal, formal int
	for _, ind := range informalIndicators {
		if strings.Contains(lower, ind) {
			informal++
		}
	}
	for _, ind := range formalIndicators {
		if strings.Contains(lower, ind) {
			formal++
		}
	}
	if informal+formal == 0 {
		return 0.5
	}
	return float64(formal) / float64(informal+formal)
}

func hasGreeting(text string) bool {
	lower := strings.ToLower(text)
	for _, g := range greetingWords {
		if strings.Contains(lower, g) {
			return true
		}
	}
	return false
}

func hasClosing(text string) bool {
	lower := strings.ToLower(text)
	for _, c := range closingWords {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// extractPatterns derives coarse correction patterns from an edit.
// Several patterns can coexist in one edit.
func extractPatterns(original, edited string) []extractedPattern {
	var patterns []extractedPattern

	switch delta := len(edited) - len(original); {
	case delta < -lengthDelta:
		patterns = append(patterns, extractedPattern{Key: PatternShorterResponses, Value: "true"})
	case delta > lengthDelta:
		patterns = append(patterns, extractedPattern{Key: PatternLongerResponses, Value: "true"})
	}

	origGreeting, editGreeting := hasGreeting(original), hasGreeting(edited)
	switch {
	case !origGreeting && editGreeting:
		patterns = append(patterns, extractedPattern{Key: PatternAddGreeting, Value: "true"})
	case origGreeting && !editGreeting:
		patterns = append(patterns, extractedPattern{Key: PatternDropGreeting, Value: "true"})
	}

	origFormality, editFormality := estimateFormality(original), estimateFormality(edited)
	switch {
	case editFormality-origFormality > 0.2:
		patterns = append(patterns, extractedPattern{Key: PatternMoreFormal, Value: "true"})
	case origFormality-editFormality > 0.2:
		patterns = append(patterns, extractedPattern{Key: PatternLessFormal, Value: "true"})
	}

	if old, replacement, ok := phraseSwapCandidate(original, edited); ok {
		patterns = append(patterns, extractedPattern{
			Key:   PatternPhraseSwap,
			Value: fmt.Sprintf("%s=>%s", old, replacement),
		})
	}

	return patterns
}

// phraseSwapCandidate finds a single-word substitution the user made.
// Only a clean one-for-one swap qualifies.
func phraseSwapCandidate(original, edited string) (old, replacement string, ok bool) {
	origWords := strings.Fields(strings.ToLower(original))
	editWords := strings.Fields(strings.ToLower(edited))
	if len(origWords) != len(editWords) {
		return "", "", false
	}
	var diffs int
	for i := range origWords {
		if origWords[i] != editWords[i] {
			diffs++
			old, replacement = origWords[i], editWords[i]
		}
	}
	if diffs != 1 {
		return "", "", false
	}
	return old, replacement, true
}
