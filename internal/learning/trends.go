package learning

import (
	"context"
	"fmt"
	"sort"

	"github.com/haasonsaas/aide/pkg/models"
)

// TrendPoint is one daily bucket in a trend series.
type TrendPoint struct {
	Date    string  `json:"date"` // YYYY-MM-DD
	Value   float64 `json:"value"`
	Samples int     `json:"samples"`
}

// TrendsReport aggregates the feedback log over a trailing window.
type TrendsReport struct {
	ApprovalRateSeries []TrendPoint `json:"approval_rate_series"`
	ImprovementAreas   []string     `json:"improvement_areas"`
	SatisfactionTrend  []TrendPoint `json:"satisfaction_trend"`
	TotalFeedback      int          `json:"total_feedback"`
}

var improvementDescriptions = map[string]string{
	PatternShorterResponses: "Responses run longer than preferred",
	PatternLongerResponses:  "Responses lack detail",
	PatternAddGreeting:      "Responses are missing greetings",
	PatternDropGreeting:     "Responses include unwanted greetings",
	PatternMoreFormal:       "Tone is too casual",
	PatternLessFormal:       "Tone is too formal",
	PatternPhraseSwap:       "Wording choices need adjustment",
}

// Trends projects the feedback log into daily approval and satisfaction
// series plus the recurring correction themes. Read-only.
func (s *Service) Trends(ctx context.Context, days int) (*TrendsReport, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().AddDate(0, 0, -days)
	entries, err := s.feedback.ListFeedbackSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}

	type bucket struct {
		approved, judged int
		quality          float64
		rated            int
	}
	buckets := make(map[string]*bucket)
	patternCounts := make(map[string]int)

	for _, fb := range entries {
		day := fb.SubmittedAt.UTC().Format("2006-01-02")
		b := buckets[day]
		if b == nil {
			b = &bucket{}
			buckets[day] = b
		}

		switch fb.Kind {
		case models.FeedbackApproved, models.FeedbackRejected, models.FeedbackEdited:
			b.judged++
			if fb.Kind == models.FeedbackApproved {
				b.approved++
			}
		}

		similarity := 0.0
		if fb.Kind == models.FeedbackEdited {
			similarity = 1 - editRatio(fb.Original, fb.Edited)
			for _, p := range extractPatterns(fb.Original, fb.Edited) {
				patternCounts[p.Key]++
			}
		}
		b.quality += fb.QualityScore(similarity)
		b.rated++
	}

	report := &TrendsReport{TotalFeedback: len(entries)}
	orderedDays := make([]string, 0, len(buckets))
	for day := range buckets {
		orderedDays = append(orderedDays, day)
	}
	sort.Strings(orderedDays)
	for _, day := range orderedDays {
		b := buckets[day]
		if b.judged > 0 {
			report.ApprovalRateSeries = append(report.ApprovalRateSeries, TrendPoint{
				Date: day, Value: float64(b.approved) / float64(b.judged), Samples: b.judged,
			})
		}
		if b.rated > 0 {
			report.SatisfactionTrend = append(report.SatisfactionTrend, TrendPoint{
				Date: day, Value: b.quality / float64(b.rated), Samples: b.rated,
			})
		}
	}

	report.ImprovementAreas = rankedAreas(patternCounts)
	return report, nil
}

// rankedAreas orders correction themes by frequency, most common first.
func rankedAreas(counts map[string]int) []string {
	type entry struct {
		key   string
		count int
	}
	ranked := make([]entry, 0, len(counts))
	for k, c := range counts {
		ranked = append(ranked, entry{k, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].key < ranked[j].key
	})
	out := make([]string, 0, len(ranked))
	for _, e := range ranked {
		if desc, ok := improvementDescriptions[e.key]; ok {
			out = append(out, desc)
		}
	}
	return out
}
