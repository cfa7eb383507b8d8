package ai

import (
	"strings"

	"github.com/ziadismael/DevPath/interviewer/internal/service/interview"
)

// deliveryRules are appended to every persona: replies are spoken aloud.
var deliveryRules = []string{
	"Your replies are converted to speech. Use plain sentences with no markdown, lists or code blocks.",
	"Keep each reply to a few sentences and ask at most one question at a time.",
	"Never read out tool output headers or mention that you called a tool.",
}

// BuildSystemPrompt renders the system message for a turn.
func BuildSystemPrompt(agent *interview.Agent) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(agent.Instructions))
	b.WriteString("\n\nVoice rules:\n- ")
	b.WriteString(strings.Join(deliveryRules, "\n- "))
	return b.String()
}
