package categorize

import (
	"context"
	"math"
	"testing"

	"mailagent_server/core/domain"

	"github.com/rs/zerolog"
)

func analysisContext(mutate ...func(*domain.EmailIndex)) *domain.EmailAnalysisContext {
	email := &domain.EmailIndex{
		ID:           "e1",
		Subject:      "Weekly status",
		Sender:       "someone@example.com",
		Snippet:      "nothing special here",
		Labels:       []string{"INBOX"},
		Date:         1704067200000, // 2024-01-01
		Year:         2024,
		SizeEstimate: 2048,
	}
	for _, m := range mutate {
		m(email)
	}
	return domain.NewAnalysisContext(email, "u1")
}

func newImportance(t *testing.T, cfg *ImportanceConfig) *ImportanceAnalyzer {
	t.Helper()
	return NewImportanceAnalyzer(cfg, nil, zerolog.Nop())
}

func TestImportanceRuleKinds(t *testing.T) {
	tests := []struct {
		name        string
		rule        domain.ImportanceRule
		mutate      func(*domain.EmailIndex)
		wantMatched bool
		wantScore   float64
	}{
		{
			name: "keyword matches with word boundary",
			rule: domain.ImportanceRule{ID: "k", Kind: domain.RuleKeyword, Weight: 2.0, Keywords: []string{"urgent"}},
			mutate: func(e *domain.EmailIndex) {
				e.Subject = "URGENT: server down"
			},
			wantMatched: true,
			wantScore:   2.0,
		},
		{
			name: "keyword does not match inside a longer word",
			rule: domain.ImportanceRule{ID: "k", Kind: domain.RuleKeyword, Weight: 2.0, Keywords: []string{"urgent"}},
			mutate: func(e *domain.EmailIndex) {
				e.Subject = "urgently needed"
			},
			wantMatched: false,
		},
		{
			name: "keyword counts each configured match",
			rule: domain.ImportanceRule{ID: "k", Kind: domain.RuleKeyword, Weight: 2.0, Keywords: []string{"urgent", "deadline"}},
			mutate: func(e *domain.EmailIndex) {
				e.Subject = "urgent deadline today"
			},
			wantMatched: true,
			wantScore:   4.0,
		},
		{
			name: "keyword scans snippet as well",
			rule: domain.ImportanceRule{ID: "k", Kind: domain.RuleKeyword, Weight: 2.0, Keywords: []string{"invoice"}},
			mutate: func(e *domain.EmailIndex) {
				e.Snippet = "your invoice is attached"
			},
			wantMatched: true,
			wantScore:   2.0,
		},
		{
			name: "domain substring match on sender",
			rule: domain.ImportanceRule{ID: "d", Kind: domain.RuleDomain, Weight: 2.5, Domains: []string{"Company.com"}},
			mutate: func(e *domain.EmailIndex) {
				e.Sender = "boss@company.com"
			},
			wantMatched: true,
			wantScore:   2.5,
		},
		{
			name: "domain scores once for multiple configured entries",
			rule: domain.ImportanceRule{ID: "d", Kind: domain.RuleDomain, Weight: 2.5, Domains: []string{"boss@", "company.com"}},
			mutate: func(e *domain.EmailIndex) {
				e.Sender = "boss@company.com"
			},
			wantMatched: true,
			wantScore:   2.5,
		},
		{
			name: "label match is case insensitive",
			rule: domain.ImportanceRule{ID: "l", Kind: domain.RuleLabel, Weight: 1.5, Labels: []string{"important"}},
			mutate: func(e *domain.EmailIndex) {
				e.Labels = []string{"IMPORTANT", "INBOX"}
			},
			wantMatched: true,
			wantScore:   1.5,
		},
		{
			name: "no-reply hyphenated",
			rule: domain.ImportanceRule{ID: "n", Kind: domain.RuleNoReply, Weight: -1.0},
			mutate: func(e *domain.EmailIndex) {
				e.Sender = "no-reply@shop.example"
			},
			wantMatched: true,
			wantScore:   -1.0,
		},
		{
			name: "no-reply joined",
			rule: domain.ImportanceRule{ID: "n", Kind: domain.RuleNoReply, Weight: -1.0},
			mutate: func(e *domain.EmailIndex) {
				e.Sender = "noreply@shop.example"
			},
			wantMatched: true,
			wantScore:   -1.0,
		},
		{
			name: "large attachment needs both flag and size",
			rule: domain.ImportanceRule{ID: "a", Kind: domain.RuleLargeAttachment, Weight: 0.5},
			mutate: func(e *domain.EmailIndex) {
				e.HasAttachments = true
				e.SizeEstimate = 2 << 20
			},
			wantMatched: true,
			wantScore:   0.5,
		},
		{
			name: "large attachment not triggered below the floor",
			rule: domain.ImportanceRule{ID: "a", Kind: domain.RuleLargeAttachment, Weight: 0.5},
			mutate: func(e *domain.EmailIndex) {
				e.HasAttachments = true
				e.SizeEstimate = 1 << 20 // exactly the floor, not above
			},
			wantMatched: false,
		},
		{
			name: "large attachment not triggered without attachments",
			rule: domain.ImportanceRule{ID: "a", Kind: domain.RuleLargeAttachment, Weight: 0.5},
			mutate: func(e *domain.EmailIndex) {
				e.HasAttachments = false
				e.SizeEstimate = 2 << 20
			},
			wantMatched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newImportance(t, &ImportanceConfig{
				Rules:         []domain.ImportanceRule{tt.rule},
				HighThreshold: 5.0,
				KeyStrategy:   KeyStrategyPartial,
			})
			eval := a.evaluateRule(a.rules[0], analysisContext(tt.mutate))
			if eval.Err != nil {
				t.Fatalf("evaluateRule: %v", eval.Err)
			}
			if eval.Matched != tt.wantMatched {
				t.Errorf("matched = %v, want %v", eval.Matched, tt.wantMatched)
			}
			if tt.wantMatched && math.Abs(eval.Score-tt.wantScore) > 1e-9 {
				t.Errorf("score = %v, want %v", eval.Score, tt.wantScore)
			}
		})
	}
}

func TestImportanceUrgentBossEmail(t *testing.T) {
	a := newImportance(t, nil)
	ectx := analysisContext(func(e *domain.EmailIndex) {
		e.Subject = "URGENT: Action Required"
		e.Sender = "boss@company.com"
		e.Labels = []string{"INBOX", "IMPORTANT"}
		e.SizeEstimate = 150000
		e.HasAttachments = true
	})

	result, err := a.Analyze(context.Background(), ectx)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Level != domain.ImportanceHigh {
		t.Errorf("level = %q, want high (score %v)", result.Level, result.Score)
	}
	// urgent + action required (2 * 2.0) + boss@ (2.5) + IMPORTANT (1.5)
	if math.Abs(result.Score-8.0) > 1e-9 {
		t.Errorf("score = %v, want 8.0", result.Score)
	}
	want := []string{"urgent-keywords", "important-senders", "important-labels"}
	if len(result.MatchedRules) != len(want) {
		t.Fatalf("matched rules = %v, want %v", result.MatchedRules, want)
	}
	for i, id := range want {
		if result.MatchedRules[i] != id {
			t.Errorf("matched[%d] = %q, want %q", i, result.MatchedRules[i], id)
		}
	}
	// 3 of 5 rules plus priorities (10+9+8)/100
	if math.Abs(result.Confidence-0.87) > 1e-9 {
		t.Errorf("confidence = %v, want 0.87", result.Confidence)
	}
}

func TestImportanceLevels(t *testing.T) {
	a := newImportance(t, nil)

	tests := []struct {
		name   string
		mutate func(*domain.EmailIndex)
		want   domain.ImportanceLevel
	}{
		{
			name: "no-reply only sender goes low",
			mutate: func(e *domain.EmailIndex) {
				e.Sender = "noreply@shop.example"
			},
			want: domain.ImportanceLow,
		},
		{
			name: "nothing matched goes low",
			mutate: func(e *domain.EmailIndex) {
				e.Sender = "friend@example.com"
			},
			want: domain.ImportanceLow,
		},
		{
			name: "single urgent keyword stays medium",
			mutate: func(e *domain.EmailIndex) {
				e.Subject = "urgent question"
			},
			want: domain.ImportanceMedium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Analyze(context.Background(), analysisContext(tt.mutate))
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if result.Level != tt.want {
				t.Errorf("level = %q, want %q (score %v)", result.Level, tt.want, result.Score)
			}
		})
	}
}

func TestImportanceUnknownRuleKindSkipped(t *testing.T) {
	a := newImportance(t, &ImportanceConfig{
		Rules: []domain.ImportanceRule{
			{ID: "broken", Kind: domain.RuleKind("bogus"), Priority: 10, Weight: 9},
			{ID: "labels", Kind: domain.RuleLabel, Priority: 5, Weight: 1.5, Labels: []string{"IMPORTANT"}},
		},
		HighThreshold: 5.0,
		KeyStrategy:   KeyStrategyPartial,
	})

	result, err := a.Analyze(context.Background(), analysisContext(func(e *domain.EmailIndex) {
		e.Labels = []string{"IMPORTANT"}
	}))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.MatchedRules) != 1 || result.MatchedRules[0] != "labels" {
		t.Errorf("matched = %v, want only the healthy rule", result.MatchedRules)
	}
	if math.Abs(result.Score-1.5) > 1e-9 {
		t.Errorf("score = %v, want 1.5", result.Score)
	}
}

func TestImportanceConfidenceCapped(t *testing.T) {
	a := newImportance(t, &ImportanceConfig{
		Rules: []domain.ImportanceRule{
			{ID: "r1", Kind: domain.RuleLabel, Priority: 90, Weight: 1, Labels: []string{"INBOX"}},
			{ID: "r2", Kind: domain.RuleLabel, Priority: 80, Weight: 1, Labels: []string{"INBOX"}},
		},
		HighThreshold: 5.0,
		KeyStrategy:   KeyStrategyPartial,
	})

	result, err := a.Analyze(context.Background(), analysisContext())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence = %v, want capped at 1", result.Confidence)
	}
}

func TestImportanceCacheLookAside(t *testing.T) {
	a := NewImportanceAnalyzer(nil, newFakeCache(), zerolog.Nop())
	ectx := analysisContext(func(e *domain.EmailIndex) {
		e.Subject = "urgent thing"
	})

	first, err := a.Analyze(context.Background(), ectx)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// A second call with the same context must be served from cache, so
	// gutting the rule set cannot change the outcome.
	a.rules = nil
	second, err := a.Analyze(context.Background(), ectx)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if second.Score != first.Score || second.Level != first.Level {
		t.Errorf("cached result = %+v, want %+v", second, first)
	}
}
