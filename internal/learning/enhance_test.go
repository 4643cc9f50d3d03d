package learning

import "testing"

func TestDropGreetingKeepsWholeWords(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{"Hi, the deploy is blocked.", "The deploy is blocked.", true},
		{"Hey! all set for tomorrow.", "All set for tomorrow.", true},
		{"Hello team, notes attached.", "Team, notes attached.", true},
		// Words that merely start with a greeting must survive intact.
		{"High priority: the deploy is blocked.", "High priority: the deploy is blocked.", false},
		{"Hitting the milestone today.", "Hitting the milestone today.", false},
		{"Hellosign link attached.", "Hellosign link attached.", false},
		// A bare greeting with nothing after it is left alone.
		{"Hi", "Hi", false},
	}
	for _, tt := range tests {
		got, changed := applyPattern(PatternDropGreeting, "true", tt.in)
		if got != tt.want || changed != tt.changed {
			t.Errorf("drop_greeting(%q) = %q changed=%v, want %q changed=%v",
				tt.in, got, changed, tt.want, tt.changed)
		}
	}
}

func TestAddGreetingIsIdempotent(t *testing.T) {
	got, changed := applyPattern(PatternAddGreeting, "true", "The report is attached.")
	if !changed || got != "Hi! The report is attached." {
		t.Fatalf("add_greeting = %q changed=%v", got, changed)
	}
	again, changed := applyPattern(PatternAddGreeting, "true", got)
	if changed || again != got {
		t.Errorf("second add_greeting = %q changed=%v, want unchanged", again, changed)
	}
}

func TestPhraseSwapTransform(t *testing.T) {
	got, changed := applyPattern(PatternPhraseSwap, "attend=>join", "I will attend the meeting.")
	if !changed || got != "I will join the meeting." {
		t.Errorf("phrase_swap = %q changed=%v", got, changed)
	}
	if _, changed := applyPattern(PatternPhraseSwap, "attend=>join", got); changed {
		t.Error("phrase_swap changed a text without the old phrase")
	}
	if _, changed := applyPattern(PatternPhraseSwap, "malformed", "anything"); changed {
		t.Error("malformed swap value changed the text")
	}
}
