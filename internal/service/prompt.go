package service

import (
	"fmt"
	"strings"

	"github.com/katakuxiko/assistgw/internal/model"
)

// MessagePlaceholder marks where the user's message goes in a prompt template.
const MessagePlaceholder = "{message}"

// PromptProcessor - закрытый набор сборщиков промпта
type PromptProcessor string

const PromptDefault PromptProcessor = "default"

func ParsePromptProcessor(s string) (PromptProcessor, error) {
	switch s {
	case "", "default":
		return PromptDefault, nil
	}
	return "", model.NewConfigurationError("unknown prompt processor %q", s)
}

// Assemble builds the final message list: one system message with the
// retrieved context, prior turns unchanged, and the current user turn
// rendered through template. Client system messages are dropped.
func Assemble(systemPrompt string, retrieval model.RetrievalResult, template string, history []model.Message) ([]model.Message, error) {
	if template != "" && !strings.Contains(template, MessagePlaceholder) {
		return nil, model.NewConfigurationError("prompt template has no %s placeholder", MessagePlaceholder)
	}

	var turns []model.Message
	for _, m := range history {
		if m.Role != model.RoleSystem {
			turns = append(turns, m)
		}
	}

	out := make([]model.Message, 0, len(turns)+1)
	if sys := systemContent(systemPrompt, retrieval.Passages); sys != "" {
		out = append(out, model.Message{Role: model.RoleSystem, Content: sys})
	}
	if len(turns) == 0 {
		return out, nil
	}

	last := len(turns) - 1
	out = append(out, turns[:last]...)
	out = append(out, renderTurn(turns[last], template))
	return out, nil
}

func systemContent(systemPrompt string, passages []model.Passage) string {
	if len(passages) == 0 {
		return systemPrompt
	}
	var sb strings.Builder
	if systemPrompt != "" {
		sb.WriteString(systemPrompt)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Context:\n")
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s]\n%s", p.SourceID, strings.TrimSpace(p.Text))
	}
	return sb.String()
}

func renderTurn(m model.Message, template string) model.Message {
	if m.Role != model.RoleUser || template == "" {
		return m
	}
	text := strings.ReplaceAll(template, MessagePlaceholder, m.Text())
	out := model.Message{Role: m.Role, Content: text}
	if images := m.Images(); len(images) > 0 {
		out.Parts = append([]model.Part{{Type: model.PartText, Text: text}}, images...)
	}
	return out
}
