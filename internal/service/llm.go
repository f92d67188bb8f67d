package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const optimizerPrompt = "You rewrite conversations into search queries for a document index. " +
	"Resolve pronouns and ellipsis from earlier turns, keep names, numbers and domain terms. " +
	"Reply with a single search query on one line and nothing else."

// LLMClient - клиент для OpenAI-совместимых моделей: embeddings и переписывание запросов
type LLMClient struct {
	client        *openai.Client
	embedName     string
	optimizerName string
}

// NewLLMClient создаёт клиент; пустое имя модели выключает соответствующую функцию
func NewLLMClient(baseURL, apiKey, embedModel, optimizerModel string) *LLMClient {
	if apiKey == "" {
		apiKey = "not-needed"
	}
	oaiCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oaiCfg.BaseURL = baseURL
	}
	return &LLMClient{
		client:        openai.NewClientWithConfig(oaiCfg),
		embedName:     embedModel,
		optimizerName: optimizerModel,
	}
}

// Embedding получает embedding текста
func (l *LLMClient) Embedding(ctx context.Context, text string) ([]float32, error) {
	if l.embedName == "" {
		return nil, fmt.Errorf("embedding model is not configured")
	}
	resp, err := l.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(l.embedName),
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}

// Enabled сообщает, настроена ли модель-оптимизатор
func (l *LLMClient) Enabled() bool {
	return l != nil && l.optimizerName != ""
}

// RewriteQuery просит лёгкую модель сформулировать один поисковый запрос
func (l *LLMClient) RewriteQuery(ctx context.Context, conversation string) (string, error) {
	if !l.Enabled() {
		return "", fmt.Errorf("query optimizer is not configured")
	}
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.optimizerName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: optimizerPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Conversation:\n" + conversation + "\nSearch query:"},
		},
		Temperature: 0.1,
		MaxTokens:   64,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("optimizer returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
