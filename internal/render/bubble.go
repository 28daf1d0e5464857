package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/vennietweek/llm-chat/internal/models"
)

// Bubble wraps one rendered turn in its chat bubble markup. The last
// bubble carries an anchor id so the page can scroll to it.
func Bubble(role models.Role, body template.HTML, last bool) template.HTML {
	cssClass := "llm-bubble"
	if role == models.RoleUser {
		cssClass = "user-bubble"
	}
	anchor := ""
	if last {
		anchor = ` id="last-message"`
	}
	return template.HTML(fmt.Sprintf(
		`<div class="chat-bubble %s"%s><div class="bubble-message">%s</div></div>`,
		cssClass, anchor, body,
	))
}

// History renders the whole conversation as a sequence of bubbles with
// the scroll anchor on the final one.
func History(msgs []models.Message) template.HTML {
	return bubbles(msgs, true)
}

// HistoryWithLoading renders the conversation followed by a pending
// spinner bubble, which takes the scroll anchor instead.
func HistoryWithLoading(msgs []models.Message) template.HTML {
	return bubbles(msgs, false) + LoadingBubble()
}

func bubbles(msgs []models.Message, anchorLast bool) template.HTML {
	var b strings.Builder
	for i, m := range msgs {
		body := UserHTML(m.Content)
		if m.Role == models.RoleAssistant {
			body = AssistantHTML(m.Content)
		}
		b.WriteString(string(Bubble(m.Role, body, anchorLast && i == len(msgs)-1)))
	}
	return template.HTML(b.String())
}

// LoadingBubble is the spinner shown while the backend call is pending.
func LoadingBubble() template.HTML {
	return Bubble(models.RoleAssistant, template.HTML(`<span class="loading-spinner"></span>`), true)
}
