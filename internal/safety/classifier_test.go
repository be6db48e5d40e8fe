// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package safety

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_UrgentTranscripts(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantFlags []string
	}{
		{"kill myself and cant go on", "I want to kill myself, I can't go on", []string{"kill myself", "can't go on"}},
		{"hopeless worthless", "I feel hopeless and worthless", []string{"hopeless", "worthless"}},
		{"panic attack help me", "I'm having a panic attack, help me", []string{"panic attack", "help me"}},
		{"crisis", "Help me, I'm in crisis", []string{"crisis", "help me"}},
		{"end my life", "I want to end my life", []string{"end my life"}},
		{"safety before urgent", "emergency: I took pills", []string{"pills", "emergency"}},
		{"typographic apostrophe", "I can’t breathe", []string{"can't breathe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			require.True(t, got.IsUrgent)
			require.Equal(t, RiskHigh, got.RiskLevel)
			for _, f := range tt.wantFlags {
				assert.Contains(t, got.Flags, f)
			}
		})
	}
}

func TestClassify_PreservesDetectionOrder(t *testing.T) {
	got := Classify("heart racing, chest pain, I feel worthless and hopeless, suicide")
	require.Equal(t, []string{"suicide", "hopeless", "worthless", "chest pain", "heart racing"}, got.Flags)
}

func TestClassify_SubstringNotTokenized(t *testing.T) {
	// substring matching, not tokenized: "gun" sits inside "begun".
	got := Classify("it has begun")
	require.Equal(t, []string{"gun"}, got.Flags)
}

func TestClassify_CaseAndPunctuationInsensitive(t *testing.T) {
	loud := Classify("I WANT TO KILL MYSELF!!!")
	quiet := Classify("i want to kill myself")
	require.Equal(t, quiet, loud)
	require.Equal(t, []string{"kill myself"}, loud.Flags)

	for _, s := range []string{"i feel... hopeless.", "HELP ME, I'm in crisis!!", "Can't go on anymore..."} {
		got := Classify(s)
		assert.True(t, got.IsUrgent, s)
		assert.NotEmpty(t, got.Flags, s)
	}
}

func TestClassify_NormalExpressions(t *testing.T) {
	for _, s := range []string{
		"I feel good today",
		"Things are getting better",
		"I had a nice conversation",
		"Feeling optimistic about tomorrow",
		"I had a good day today, feeling better",
	} {
		got := Classify(s)
		assert.False(t, got.IsUrgent, s)
		assert.Empty(t, got.Flags, s)
		assert.Equal(t, RiskLow, got.RiskLevel, s)
	}
}

func TestClassifyValue_InvalidInputs(t *testing.T) {
	var nilStr *string
	for _, in := range []any{nil, "", "   ", 123, 4.5, true, map[string]any{"x": "suicide"}, []string{"suicide"}, nilStr} {
		got := ClassifyValue(in)
		require.False(t, got.IsUrgent)
		require.NotNil(t, got.Flags)
		require.Empty(t, got.Flags)
		require.Equal(t, RiskLow, got.RiskLevel)
	}

	s := "I feel worthless"
	require.True(t, ClassifyValue(&s).IsUrgent)
	require.True(t, ClassifyValue(s).IsUrgent)
}

func TestResponseFor(t *testing.T) {
	msg, ok := ResponseFor(Assessment{IsUrgent: true, Flags: []string{"suicide"}, RiskLevel: RiskHigh})
	require.True(t, ok)
	require.Contains(t, msg, "concerned")
	require.Contains(t, msg, "mental health professional")
	require.Contains(t, msg, "crisis hotline")

	msg, ok = ResponseFor(Assessment{Flags: []string{}, RiskLevel: RiskLow})
	require.False(t, ok)
	require.Empty(t, msg)
}

func TestMoodReply(t *testing.T) {
	tests := map[string]string{
		"I feel down and sad today":       replySad,
		"I'm so worried about work":       replyAnxious,
		"Honestly just FRUSTRATED":        replyAngry,
		"We went to the beach":            replyDefault,
		"":                                replyDefault,
		"depressed and anxious, both":     replySad,
		"stress is getting to me, angry!": replyAnxious,
	}
	for in, want := range tests {
		assert.Equal(t, want, MoodReply(in), in)
	}
}

func TestReply_PrefersCrisisMessage(t *testing.T) {
	text := "I feel sad and hopeless"
	require.Equal(t, CrisisMessage, Reply(text, Classify(text)))
	require.Equal(t, replySad, Reply("I feel sad", Classify("I feel sad")))
}

func TestKeywordAccessorsReturnCopies(t *testing.T) {
	kw := SafetyKeywords()
	kw[0] = "changed"
	require.Equal(t, "suicide", SafetyKeywords()[0])
	require.Len(t, UrgentKeywords(), 8)
	require.Len(t, SafetyKeywords(), 19)
}

func TestClassify_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	all := append(SafetyKeywords(), UrgentKeywords()...)

	properties.Property("any embedded keyword is flagged as HIGH", prop.ForAll(
		func(prefix, suffix string, idx int) bool {
			kw := all[idx]
			got := Classify(prefix + " " + kw + " " + suffix)
			if !got.IsUrgent || got.RiskLevel != RiskHigh {
				return false
			}
			for _, f := range got.Flags {
				if f == kw {
					return true
				}
			}
			return false
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(0, len(all)-1),
	))

	properties.Property("upper-casing does not change the verdict", prop.ForAll(
		func(prefix string, idx int) bool {
			s := prefix + " " + all[idx]
			a, b := Classify(s), Classify(strings.ToUpper(s))
			return a.IsUrgent == b.IsUrgent && strings.Join(a.Flags, "|") == strings.Join(b.Flags, "|")
		},
		gen.AlphaString(),
		gen.IntRange(0, len(all)-1),
	))

	properties.Property("digit-only text is never flagged", prop.ForAll(
		func(s string) bool {
			got := Classify(s)
			return !got.IsUrgent && len(got.Flags) == 0 && got.RiskLevel == RiskLow
		},
		gen.NumString(),
	))

	properties.Property("flags equal the keywords contained in the lowered text", prop.ForAll(
		func(s string) bool {
			lower := strings.ToLower(s)
			var want []string
			for _, kw := range all {
				if strings.Contains(lower, kw) {
					want = append(want, kw)
				}
			}
			got := Classify(s)
			return strings.Join(want, "|") == strings.Join(got.Flags, "|") && got.IsUrgent == (len(want) > 0)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
