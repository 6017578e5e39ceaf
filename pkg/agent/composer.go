package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harun/skagent/pkg/memory"
	"github.com/harun/skagent/pkg/persona"
)

// Recent-memory budget for chat prompts
const (
	recentTurnLimit   = 3
	recentUserChars   = 60
	recentAnswerChars = 80
	recentTotalChars  = 900
)

// ChatPrompt is the system and user message pair sent to the model
type ChatPrompt struct {
	System string
	User   string
}

// Composer builds chat prompts from the step context
type Composer struct {
	persona persona.Source
}

// NewComposer creates a composer reading persona from source
func NewComposer(source persona.Source) *Composer {
	if source == nil {
		source = persona.Static(persona.Neutral)
	}
	return &Composer{persona: source}
}

// Compose reads profile and recent turns from the step state
func (c *Composer) Compose(execCtx *Context) ChatPrompt {
	var profile map[string]string
	if v, ok := execCtx.Lookup(StateKeyProfile); ok {
		profile, _ = v.(map[string]string)
	}
	var recent []memory.TurnRecord
	if v, ok := execCtx.Lookup(StateKeyRecentTurns); ok {
		recent, _ = v.([]memory.TurnRecord)
	}

	return ChatPrompt{
		System: buildSystemMessage(c.persona.Current(), profile, execCtx.Input),
		User:   buildUserMessage(execCtx.Input, recent),
	}
}

func buildSystemMessage(p persona.Options, profile map[string]string, input string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(p.SystemPrompt))
	sb.WriteString("\n")

	if len(profile) > 0 {
		sb.WriteString("\n[User Profile]\n")
		keys := make([]string, 0, len(profile))
		for k := range profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s=%s\n", k, profile[k])
		}
	}

	if isSmallTalk(input) {
		sb.WriteString("\n[Response Policy]\n")
		sb.WriteString("This is small talk. Reply in at most two sentences and ask one clarifying question. Do not output long lists.\n")
	}

	if isAskingIdentity(input) {
		sb.WriteString("\n[Critical Rule]\n")
		sb.WriteString("When the user asks who they are or what their name is, answer from the name field of the User Profile.\n")
		sb.WriteString("If the name is missing or uncertain, say you do not know and ask for it. Never invent one.\n")
	}

	return sb.String()
}

// buildUserMessage adds at most three recent turns in chronological order.
// recent is newest first.
func buildUserMessage(input string, recent []memory.TurnRecord) string {
	if len(recent) == 0 {
		return input
	}

	selected := recent[:min(len(recent), recentTurnLimit)]

	var sb strings.Builder
	sb.WriteString("[Recent Memory]\n")
	for i := len(selected) - 1; i >= 0; i-- {
		t := selected[i]
		fmt.Fprintf(&sb, "- U: %s\n", clip(t.UserInput, recentUserChars))
		fmt.Fprintf(&sb, "  A: %s\n", clip(t.AssistantOutput, recentAnswerChars))
		if sb.Len() > recentTotalChars {
			break
		}
	}
	sb.WriteString("\n[Current Task]\n")
	sb.WriteString(input)
	sb.WriteString("\n")
	return sb.String()
}

func clip(s string, limit int) string {
	s = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(s))
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"good morning": true, "good evening": true, "good afternoon": true,
	"are you there": true, "are you there?": true,
}

func isSmallTalk(input string) bool {
	t := strings.ToLower(strings.TrimSpace(input))
	if t == "" {
		return true
	}
	if greetings[strings.TrimRight(t, "!.? ")] {
		return true
	}
	return strings.HasPrefix(t, "hi ") || strings.HasPrefix(t, "hello ") || strings.HasPrefix(t, "hey ") || isAskingIdentity(t)
}

var identityPhrases = []string{
	"who am i",
	"what is my name",
	"what's my name",
	"do you know my name",
	"who are you",
	"what is your name",
	"what's your name",
}

func isAskingIdentity(input string) bool {
	t := strings.ToLower(strings.TrimSpace(input))
	if t == "" {
		return false
	}
	for _, p := range identityPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
