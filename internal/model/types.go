package model

import "strings"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	PartText  = "text"
	PartImage = "image_url"
)

// Part - один элемент мультимодального сообщения
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message - одна реплика диалога. Parts заполнен только для мультимодального контента.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Parts   []Part `json:"parts,omitempty"`
}

// Text returns only the textual content, image parts dropped.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText && strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// Images returns the image parts of the message.
func (m Message) Images() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Type == PartImage {
			out = append(out, p)
		}
	}
	return out
}

// PipelineConfig выбирает вариант каждой стадии по имени
type PipelineConfig struct {
	ConnectorName       string `json:"connector"`
	ModelName           string `json:"model"`
	PromptProcessorName string `json:"prompt_processor"`
	RAGProcessorName    string `json:"rag_processor"`
}

// Assistant - конфигурация ассистента, только для чтения
type Assistant struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	OrganizationID string         `json:"organization_id"`
	SystemPrompt   string         `json:"system_prompt"`
	PromptTemplate string         `json:"prompt_template"`
	RAGCollections []string       `json:"rag_collections"`
	RAGTopK        int            `json:"rag_top_k"`
	Pipeline       PipelineConfig `json:"pipeline"`
}

// ProviderConfig - настройки провайдера для организации (или системные по умолчанию)
type ProviderConfig struct {
	Provider      string   `json:"provider"`
	Enabled       bool     `json:"enabled"`
	APIKey        string   `json:"api_key"`
	BaseURL       string   `json:"base_url"`
	AllowedModels []string `json:"allowed_models"`
	DefaultModel  string   `json:"default_model"`
}

// Allows reports whether name is in the allow-list.
func (p ProviderConfig) Allows(name string) bool {
	for _, m := range p.AllowedModels {
		if m == name {
			return true
		}
	}
	return false
}

// Valid checks the enabled-config invariant.
func (p ProviderConfig) Valid() bool {
	if !p.Enabled {
		return true
	}
	return len(p.AllowedModels) > 0 && p.Allows(p.DefaultModel)
}

// CompletionRequest - входящий запрос на завершение диалога
type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Passage - найденный фрагмент знаний
type Passage struct {
	Text       string  `json:"text"`
	SourceID   string  `json:"source_id"`
	Collection string  `json:"collection"`
	Score      float64 `json:"score"`
}

// RetrievalResult - итог поиска; пустой результат не ошибка
type RetrievalResult struct {
	Passages           []Passage `json:"passages"`
	Query              string    `json:"query"`
	CollectionsQueried []string  `json:"collections_queried"`
}

// Usage - расход токенов
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type AttemptOutcome string

const (
	OutcomeSuccess    AttemptOutcome = "success"
	OutcomeAPIError   AttemptOutcome = "api_error"
	OutcomeNotAllowed AttemptOutcome = "not_allowed"
)

// FallbackAttempt - одна попытка выбора/вызова модели
type FallbackAttempt struct {
	Model   string         `json:"model"`
	Outcome AttemptOutcome `json:"outcome"`
	Detail  string         `json:"detail,omitempty"`
}
