package prompts

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/jwebster45206/questline/pkg/chat"
	"github.com/jwebster45206/questline/pkg/content"
)

// CharacterPostPrompt follows every persona.
const CharacterPostPrompt = "You are a character in a cozy labyrinth-keeping game. Keep responses short (1-3 sentences) and in character. " +
	"If the player asks about secrets or hidden things, be mysterious but give subtle hints."

// HintPrompt is appended once the player has said the character's keyword.
const HintPrompt = "IMPORTANT: The player mentioned %q, which is exactly what you were hoping to hear. " +
	"You are now excited and willing to help, and you repeat the word back to them."

// ReturningPrompt asks the oracle for a greeting on a repeat visit.
const ReturningPrompt = "The player has returned to talk to you again. Give a brief, friendly greeting acknowledging you've met before."

// ReturningHistoryLimit is how many exchanges a returning greeting sees.
const ReturningHistoryLimit = 3

// GenericFallback is used when no personality line applies.
const GenericFallback = "I'm sorry, I seem to have lost my words for a moment..."

const returningSuffix = " Good to see you again!"

// Personality types with their own fallback lines.
const (
	PersonalityShy        = "shy"
	PersonalityWise       = "wise"
	PersonalityCheerful   = "cheerful"
	PersonalityMysterious = "mysterious"
	PersonalityDefault    = "default"
)

var fallbackLines = map[string][]string{
	PersonalityShy: {
		"Oh... um... hello there. I don't really know what to say...",
		"I'm not very good at talking to people... sorry.",
		"Maybe we could just... sit quietly together?",
		"I hope I'm not bothering you...",
		"Sometimes I wish I could be braver...",
	},
	PersonalityWise: {
		"In my many years, I have learned that patience is a virtue.",
		"Every season brings change, and with it, new understanding.",
		"Sometimes the most profound truths are found in silence.",
	},
	PersonalityCheerful: {
		"Oh how wonderful to see you! What a beautiful day!",
		"There's always something exciting happening around here!",
		"You simply must tell me about your adventures!",
	},
	PersonalityMysterious: {
		"Some secrets are meant to be discovered slowly...",
		"Perhaps you will understand in time...",
		"Listen carefully to what the wind whispers...",
	},
}

var firstMeetingLines = []string{
	"Hello there! Nice to meet you.",
	"Oh, hello! I wasn't expecting company.",
	"Greetings, neighbor. What brings you here?",
	"Well hello! Always nice to see a new face.",
	"Oh my, a visitor! How delightful!",
}

// SystemPrompt is the persona followed by the brevity instruction and, when
// hint is set, the hint instruction.
func SystemPrompt(c content.Character, hint string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(c.Prompt))
	sb.WriteString("\n\n")
	sb.WriteString(CharacterPostPrompt)
	if hint != "" {
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf(HintPrompt, hint))
	}
	return sb.String()
}

// PersonalityOf returns the character's personality type. Characters
// without one are classified by words in their persona.
func PersonalityOf(c content.Character) string {
	if p := strings.ToLower(strings.TrimSpace(c.Personality)); p != "" {
		if _, ok := fallbackLines[p]; ok {
			return p
		}
		return PersonalityDefault
	}

	persona := strings.ToLower(c.Prompt)
	switch {
	case containsAny(persona, "shy", "bashful"):
		return PersonalityShy
	case containsAny(persona, "wise", "ancient", "old"):
		return PersonalityWise
	case containsAny(persona, "cheerful", "excited", "happy"):
		return PersonalityCheerful
	case containsAny(persona, "mysterious", "secret", "enigmatic"):
		return PersonalityMysterious
	}
	return PersonalityDefault
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Fallback returns filler dialogue for a personality type. Unknown types
// get GenericFallback.
func Fallback(personality string) string {
	lines, ok := fallbackLines[personality]
	if !ok || len(lines) == 0 {
		return GenericFallback
	}
	return lines[rand.IntN(len(lines))]
}

// FallbackFor picks filler dialogue for c in reply to message. Questions
// about secrets get a mysterious line and greetings get the personality's
// opening line.
func FallbackFor(c content.Character, message string) string {
	msg := strings.ToLower(message)
	personality := PersonalityOf(c)
	switch {
	case containsAny(msg, "secret", "hidden"):
		return Fallback(PersonalityMysterious)
	case containsAny(msg, "hello", "hi"):
		if lines, ok := fallbackLines[personality]; ok {
			return lines[0]
		}
	}
	return Fallback(personality)
}

// Opener describes how a conversation begins. When Prompt is empty Text is
// the greeting. Otherwise the greeting should be generated from Prompt and
// History, with Text as the stand-in if generation fails.
type Opener struct {
	Text    string
	Prompt  string
	History []chat.Exchange
}

// Greeting plans the opening line for c given the transcript so far.
// Restorative characters always use their scripted line.
func Greeting(c content.Character, history []chat.Exchange) Opener {
	first := FirstMeeting(c)
	if c.Restorative || len(history) == 0 {
		return Opener{Text: first}
	}
	return Opener{
		Text:    first + returningSuffix,
		Prompt:  ReturningPrompt,
		History: chat.Last(history, ReturningHistoryLimit),
	}
}

// FirstMeeting returns the character's scripted greeting or a generic one.
func FirstMeeting(c content.Character) string {
	if c.Greeting != "" {
		return strings.TrimSpace(c.Greeting)
	}
	return firstMeetingLines[rand.IntN(len(firstMeetingLines))]
}
