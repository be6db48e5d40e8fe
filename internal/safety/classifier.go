// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package safety classifies transcripts for self-harm and acute-distress risk
// using deterministic keyword matching, and picks the reply sent back to the
// patient.
package safety

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RiskLevel is the coarse risk verdict attached to an assessment.
type RiskLevel string

const (
	RiskLow  RiskLevel = "LOW"
	RiskHigh RiskLevel = "HIGH"
)

// Assessment is the classifier verdict for one transcript.
// Flags keeps detection order: safety-list matches first, then urgent-list matches.
type Assessment struct {
	IsUrgent  bool      `json:"isUrgent"`
	Flags     []string  `json:"safetyFlags"`
	RiskLevel RiskLevel `json:"riskLevel"`
}

// Self-harm and crisis phrases.
var safetyKeywords = []string{
	"suicide", "kill myself", "end my life", "want to die", "better off dead",
	"self harm", "cut myself", "hurt myself", "overdose", "pills",
	"jump off", "hang myself", "gun", "knife", "rope",
	"hopeless", "worthless", "can't go on", "nothing left",
}

// Acute-distress phrases.
var urgentKeywords = []string{
	"emergency", "crisis", "help me", "desperate", "panic attack",
	"can't breathe", "chest pain", "heart racing",
}

// SafetyKeywords returns a copy of the safety keyword list in match order.
func SafetyKeywords() []string {
	return append([]string(nil), safetyKeywords...)
}

// UrgentKeywords returns a copy of the urgent keyword list in match order.
func UrgentKeywords() []string {
	return append([]string(nil), urgentKeywords...)
}

// typographic apostrophes are folded so "can’t go on" matches "can't go on".
var apostropheFolder = strings.NewReplacer("’", "'", "‘", "'")

func normalize(transcript string) string {
	// cases.Caser is stateful; one per call keeps Classify safe for concurrent use.
	lower := cases.Lower(language.Und).String(transcript)
	return apostropheFolder.Replace(lower)
}

// Classify scans the transcript for every configured keyword. Matching is a
// case-insensitive substring test with no deduplication, so overlapping
// keywords are each recorded when they match.
func Classify(transcript string) Assessment {
	out := Assessment{Flags: []string{}, RiskLevel: RiskLow}
	if transcript == "" {
		return out
	}

	text := normalize(transcript)
	for _, kw := range safetyKeywords {
		if strings.Contains(text, kw) {
			out.Flags = append(out.Flags, kw)
			out.IsUrgent = true
		}
	}
	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			out.Flags = append(out.Flags, kw)
			out.IsUrgent = true
		}
	}
	if out.IsUrgent {
		out.RiskLevel = RiskHigh
	}
	return out
}

// ClassifyValue classifies untyped input such as a decoded JSON field.
// Anything that is not a string yields the low-risk assessment.
func ClassifyValue(v any) Assessment {
	switch t := v.(type) {
	case string:
		return Classify(t)
	case *string:
		if t != nil {
			return Classify(*t)
		}
	}
	return Classify("")
}
