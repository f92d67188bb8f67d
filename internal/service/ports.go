package service

import (
	"context"

	"github.com/katakuxiko/assistgw/internal/model"
)

// AssistantStore - хранилище ассистентов (только чтение)
type AssistantStore interface {
	GetAssistant(ctx context.Context, id string) (*model.Assistant, error)
	ListAssistants(ctx context.Context) ([]model.Assistant, error)
}

// OrgConfigStore returns the stored provider record of an organization,
// or nil when the organization has none.
type OrgConfigStore interface {
	GetProviderConfig(ctx context.Context, orgID, provider string) (*model.ProviderConfig, error)
}

// KnowledgeStore - внешняя база знаний
type KnowledgeStore interface {
	Query(ctx context.Context, collection, text string, topK int) ([]model.Passage, error)
}

// VectorSearcher finds the nearest chunks of one collection.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vec []float32, k int) ([]model.Passage, error)
}

// Embedder превращает текст в вектор
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// QueryOptimizer rewrites a conversation summary into one search query.
type QueryOptimizer interface {
	Enabled() bool
	RewriteQuery(ctx context.Context, conversation string) (string, error)
}
