package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/katakuxiko/assistgw/internal/model"
	"github.com/katakuxiko/assistgw/internal/service"
)

// chatRequest - тело POST /chat/completions в формате OpenAI
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content wireContent `json:"content"`
}

// wireContent accepts either a plain string or an array of typed parts.
type wireContent struct {
	Text  string
	Parts []model.Part
}

type wirePart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	ImageURL json.RawMessage `json:"image_url"`
}

func (c *wireContent) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '"':
		return json.Unmarshal(b, &c.Text)
	case b[0] != '[':
		return fmt.Errorf("content must be a string or an array of parts")
	}

	var parts []wirePart
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	for _, p := range parts {
		switch p.Type {
		case model.PartText:
			c.Parts = append(c.Parts, model.Part{Type: model.PartText, Text: p.Text})
		case model.PartImage:
			url, err := imageURL(p.ImageURL)
			if err != nil {
				return err
			}
			c.Parts = append(c.Parts, model.Part{Type: model.PartImage, ImageURL: url})
		default:
			return fmt.Errorf("unsupported content part type %q", p.Type)
		}
	}
	return nil
}

// imageURL понимает и {"url": "..."}, и просто строку
func imageURL(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.URL == "" {
		return "", fmt.Errorf("image_url part needs a url")
	}
	return obj.URL, nil
}

func (r chatRequest) toModel() (model.CompletionRequest, error) {
	if strings.TrimSpace(r.Model) == "" {
		return model.CompletionRequest{}, fmt.Errorf("%w: model is required", service.ErrBadRequest)
	}
	out := model.CompletionRequest{Model: r.Model, Stream: r.Stream}
	for i, m := range r.Messages {
		switch m.Role {
		case model.RoleSystem, model.RoleUser, model.RoleAssistant:
		default:
			return out, fmt.Errorf("%w: messages[%d]: unsupported role %q", service.ErrBadRequest, i, m.Role)
		}
		out.Messages = append(out.Messages, model.Message{Role: m.Role, Content: m.Content.Text, Parts: m.Content.Parts})
	}
	return out, nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// fallbackInfo is attached when the answer did not come from the requested model.
type fallbackInfo struct {
	ResolvedModel string                  `json:"resolved_model"`
	Warning       string                  `json:"warning"`
	Attempts      []model.FallbackAttempt `json:"attempts"`
}

type source struct {
	SourceID   string  `json:"source_id"`
	Collection string  `json:"collection"`
	Score      float64 `json:"score"`
}

type chatCompletion struct {
	ID       string             `json:"id"`
	Object   string             `json:"object"`
	Created  int64              `json:"created"`
	Model    string             `json:"model"`
	Choices  []completionChoice `json:"choices"`
	Usage    *model.Usage       `json:"usage,omitempty"`
	Fallback *fallbackInfo      `json:"fallback,omitempty"`
	Sources  []source           `json:"sources,omitempty"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type modelEntry struct {
	ID           string               `json:"id"`
	Object       string               `json:"object"`
	Created      int64                `json:"created"`
	OwnedBy      string               `json:"owned_by"`
	Name         string               `json:"name,omitempty"`
	Capabilities service.Capabilities `json:"capabilities"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

func buildCompletion(id string, created int64, res *service.Completion) chatCompletion {
	out := chatCompletion{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   res.Assistant.ID,
		Choices: []completionChoice{{
			Message:      responseMessage{Role: model.RoleAssistant, Content: res.Response.Content},
			FinishReason: finishOrStop(res.Response.FinishReason),
		}},
		Usage: res.Response.Usage,
	}
	if res.Warning != "" {
		out.Fallback = &fallbackInfo{ResolvedModel: res.Model, Warning: res.Warning, Attempts: res.Attempts}
	}
	for _, p := range res.Retrieval.Passages {
		out.Sources = append(out.Sources, source{SourceID: p.SourceID, Collection: p.Collection, Score: p.Score})
	}
	return out
}

func finishOrStop(reason string) string {
	if reason == "" {
		return "stop"
	}
	return reason
}

// headerSafe убирает управляющие символы, которые нельзя класть в заголовок
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
