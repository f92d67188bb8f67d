package service

import (
	"context"
	"fmt"

	"github.com/katakuxiko/assistgw/internal/model"
)

// KnowledgeService - база знаний поверх векторного хранилища:
// текст запроса превращается в embedding и ищется в одной коллекции
type KnowledgeService struct {
	store    VectorSearcher
	embedder Embedder
}

func NewKnowledgeService(store VectorSearcher, embedder Embedder) *KnowledgeService {
	return &KnowledgeService{store: store, embedder: embedder}
}

func (s *KnowledgeService) Query(ctx context.Context, collection, text string, topK int) ([]model.Passage, error) {
	vec, err := s.embedder.Embedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding error: %w", err)
	}
	passages, err := s.store.Search(ctx, collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}
	return passages, nil
}
