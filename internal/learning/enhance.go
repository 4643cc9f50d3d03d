package learning

import (
	"context"
	"fmt"
	"strings"
)

// A preference must clear both gates before it shapes a draft.
func (s *Service) qualifies(confidence float64, samples int) bool {
	return samples >= s.minSamples && confidence >= s.confidenceThreshold
}

// Enhance applies the qualifying learned preferences to a draft and
// records which ones influenced it. The draft comes back unchanged when
// nothing qualifies. messageID ties later approve/reject feedback back
// to the applied preferences.
func (s *Service) Enhance(ctx context.Context, messageID, draft string) (string, error) {
	prefs, err := s.prefs.ListPreferences(ctx, DefaultUserID)
	if err != nil {
		return draft, fmt.Errorf("list preferences: %w", err)
	}

	result := draft
	var applied []string
	for _, pref := range prefs {
		if !s.qualifies(pref.Confidence, pref.Samples) {
			continue
		}
		transformed, changed := applyPattern(pref.Key, pref.Value, result)
		if changed {
			result = transformed
			applied = append(applied, pref.Key)
		}
	}

	if len(applied) > 0 {
		s.recordInfluence(messageID, applied)
		s.logger.Debug("draft enhanced", "message_id", messageID, "preferences", applied)
	}
	return result, nil
}

var formalReplacements = map[string]string{
	"hey":   "hello",
	"yeah":  "yes",
	"gonna": "going to",
	"wanna": "want to",
}

var casualReplacements = map[string]string{
	"furthermore": "also",
	"therefore":   "so",
	"kindly":      "please",
	"sincerely":   "thanks",
}

// applyPattern applies one preference as an idempotent textual
// transform. Returns the text and whether anything changed; applying
// the same pattern twice never changes the text again.
func applyPattern(key, value, text string) (string, bool) {
	switch key {
	case PatternShorterResponses:
		return truncateSentences(text, 2)
	case PatternLongerResponses:
		const offer = "Happy to share more detail if helpful."
		if strings.Contains(text, offer) {
			return text, false
		}
		return strings.TrimRight(text, " \n") + " " + offer, true
	case PatternAddGreeting:
		if hasGreeting(text) {
			return text, false
		}
		return "Hi! " + text, true
	case PatternDropGreeting:
		return stripLeadingGreeting(text)
	case PatternMoreFormal:
		return replaceWords(text, formalReplacements)
	case PatternLessFormal:
		return replaceWords(text, casualReplacements)
	case PatternPhraseSwap:
		old, replacement, ok := strings.Cut(value, "=>")
		if !ok || old == "" || !strings.Contains(text, old) {
			return text, false
		}
		return strings.ReplaceAll(text, old, replacement), true
	default:
		return text, false
	}
}

// truncateSentences keeps the first n sentences of the text.
func truncateSentences(text string, n int) (string, bool) {
	sentences := splitSentences(text)
	if len(sentences) <= n {
		return text, false
	}
	return strings.Join(sentences[:n], " "), true
}

func splitSentences(text string) []string {
	var out []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// stripLeadingGreeting removes a greeting word at the start of the
// text along with any trailing punctuation. The greeting must end at a
// word boundary so that "High" or "Hitting" is never mangled.
func stripLeadingGreeting(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, g := range greetingWords {
		if !strings.HasPrefix(lower, g) {
			continue
		}
		rest := trimmed[len(g):]
		if rest != "" && !strings.ContainsRune(",.! ", rune(rest[0])) {
			continue
		}
		rest = strings.TrimLeft(rest, ",.! ")
		if rest == "" {
			return text, false
		}
		return strings.ToUpper(rest[:1]) + rest[1:], true
	}
	return text, false
}

// replaceWords swaps whole words per the mapping, preserving the rest
// of the text.
func replaceWords(text string, replacements map[string]string) (string, bool) {
	words := strings.Fields(text)
	changed := false
	for i, w := range words {
		core := strings.Trim(w, ",.!?")
		if repl, ok := replacements[strings.ToLower(core)]; ok {
			words[i] = strings.Replace(w, core, repl, 1)
			changed = true
		}
	}
	if !changed {
		return text, false
	}
	return strings.Join(words, " "), true
}
