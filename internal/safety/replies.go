// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package safety

import "strings"

// CrisisMessage is returned instead of a mood reply whenever a transcript is urgent.
const CrisisMessage = "I'm concerned about what you've shared. Please consider reaching out to a mental health professional or crisis hotline immediately. Would you like me to provide some resources?"

const (
	replySad     = "I hear that you're feeling down. Can you tell me more about what's contributing to these feelings?"
	replyAnxious = "It sounds like you're experiencing some anxiety. What situations tend to trigger these feelings for you?"
	replyAngry   = "I can sense some frustration. What's been happening that's making you feel this way?"
	replyDefault = "Thank you for sharing. How has your day been overall?"
)

type moodRule struct {
	keywords []string
	reply    string
}

// Checked in order; the first matching mood wins.
var moodRules = []moodRule{
	{keywords: []string{"sad", "down", "depressed"}, reply: replySad},
	{keywords: []string{"anxious", "worried", "stress"}, reply: replyAnxious},
	{keywords: []string{"angry", "frustrated"}, reply: replyAngry},
}

// ResponseFor returns the crisis-guidance override for urgent assessments.
// The boolean is false when no override applies.
func ResponseFor(a Assessment) (string, bool) {
	if a.IsUrgent {
		return CrisisMessage, true
	}
	return "", false
}

// MoodReply picks a canned supportive prompt keyed on simple mood keywords.
func MoodReply(transcript string) string {
	text := normalize(transcript)
	for _, rule := range moodRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.reply
			}
		}
	}
	return replyDefault
}

// Reply is the bot response for a classified transcript.
func Reply(transcript string, a Assessment) string {
	if msg, ok := ResponseFor(a); ok {
		return msg
	}
	return MoodReply(transcript)
}
