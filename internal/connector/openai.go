package connector

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/katakuxiko/assistgw/internal/model"
	"github.com/katakuxiko/assistgw/internal/util"
	"github.com/sashabaranov/go-openai"
)

// OpenAI - коннектор к OpenAI-совместимому API (OpenAI, LM Studio, vLLM и т.п.)
type OpenAI struct {
	client  *openai.Client
	secrets []string
}

// NewOpenAI создаёт клиент с ключом и адресом из настроек провайдера
func NewOpenAI(cfg model.ProviderConfig) *OpenAI {
	key := cfg.APIKey
	if key == "" {
		key = "not-needed"
	}
	oaiCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(oaiCfg),
		secrets: secretsOf(cfg.APIKey, cfg.BaseURL),
	}
}

func (o *OpenAI) Complete(ctx context.Context, name string, messages []model.Message) (*Response, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    name,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return nil, o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(KindTransient, nil, "backend returned no choices")
	}
	return &Response{
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: &model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (o *OpenAI) Stream(ctx context.Context, name string, messages []model.Message) (Stream, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    name,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return nil, o.classify(err)
	}
	return &openAIStream{stream: stream, owner: o}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
	owner  *OpenAI
}

func (s *openAIStream) Recv() (Chunk, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		if err != nil {
			return Chunk{}, s.owner.classify(err)
		}
		// служебные чанки без choices пропускаем
		if len(resp.Choices) == 0 {
			continue
		}
		c := resp.Choices[0]
		return Chunk{DeltaText: c.Delta.Content, FinishReason: string(c.FinishReason)}, nil
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

// classify maps go-openai errors to connector kinds with secrets scrubbed.
func (o *OpenAI) classify(err error) error {
	msg := util.Redact(err.Error(), o.secrets...)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newError(classifyStatus(apiErr.HTTPStatusCode), err, "%s", util.Redact(apiErr.Message, o.secrets...))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newError(classifyStatus(reqErr.HTTPStatusCode), err, "http %d %s", reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode))
	}
	if errors.Is(err, context.Canceled) {
		// отмена клиентом - не повод для повтора, отдаём как есть
		return err
	}
	return newError(KindTransient, err, "%s", msg)
}

func toOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case model.PartText:
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			case model.PartImage:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL},
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts})
	}
	return out
}
