package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/katakuxiko/assistgw/internal/connector"
	"github.com/katakuxiko/assistgw/internal/model"
)

// mockConnector answers per model; errs scripts failures by model name.
type mockConnector struct {
	mu       sync.Mutex
	calls    []string
	content  string
	errs     map[string]error
	midErr   error // returned by the stream after the first chunk
	messages []model.Message
}

func (m *mockConnector) record(name string, msgs []model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	m.messages = msgs
	return m.errs[name]
}

func (m *mockConnector) Complete(ctx context.Context, name string, msgs []model.Message) (*connector.Response, error) {
	if err := m.record(name, msgs); err != nil {
		return nil, err
	}
	return &connector.Response{Model: name, Content: m.content, FinishReason: "stop"}, nil
}

func (m *mockConnector) Stream(ctx context.Context, name string, msgs []model.Message) (connector.Stream, error) {
	if err := m.record(name, msgs); err != nil {
		return nil, err
	}
	return &mockStream{parts: []string{m.content[:len(m.content)/2], m.content[len(m.content)/2:]}, midErr: m.midErr}, nil
}

func (m *mockConnector) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockStream struct {
	parts  []string
	pos    int
	midErr error
	closed bool
}

func (s *mockStream) Recv() (connector.Chunk, error) {
	if s.pos == 1 && s.midErr != nil {
		return connector.Chunk{}, s.midErr
	}
	if s.pos < len(s.parts) {
		s.pos++
		return connector.Chunk{DeltaText: s.parts[s.pos-1]}, nil
	}
	if s.pos == len(s.parts) {
		s.pos++
		return connector.Chunk{FinishReason: "stop"}, nil
	}
	return connector.Chunk{}, io.EOF
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

type mockOrgStore struct {
	mu      sync.Mutex
	configs map[string]*model.ProviderConfig // org/provider
	err     error
	lookups int
}

func (m *mockOrgStore) GetProviderConfig(ctx context.Context, orgID, provider string) (*model.ProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	return m.configs[orgID+"/"+provider], nil
}

type mockAssistants struct {
	items map[string]model.Assistant
}

func (m *mockAssistants) GetAssistant(ctx context.Context, id string) (*model.Assistant, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, model.ErrAssistantNotFound
	}
	return &a, nil
}

func (m *mockAssistants) ListAssistants(ctx context.Context) ([]model.Assistant, error) {
	var out []model.Assistant
	for _, a := range m.items {
		out = append(out, a)
	}
	return out, nil
}

// mockKnowledge returns one passage per collection unless it is listed in fail.
type mockKnowledge struct {
	mu      sync.Mutex
	fail    map[string]bool
	queries []string
}

func (m *mockKnowledge) Query(ctx context.Context, collection, text string, topK int) ([]model.Passage, error) {
	m.mu.Lock()
	m.queries = append(m.queries, collection+":"+text)
	m.mu.Unlock()
	if m.fail[collection] {
		return nil, errors.New("knowledge store unreachable")
	}
	var out []model.Passage
	for i := 0; i < topK; i++ {
		out = append(out, model.Passage{Text: "about " + text, SourceID: collection + "-doc", Score: 0.9})
	}
	return out, nil
}

type mockOptimizer struct {
	enabled bool
	query   string
	err     error
	got     string
}

func (m *mockOptimizer) Enabled() bool { return m.enabled }

func (m *mockOptimizer) RewriteQuery(ctx context.Context, conversation string) (string, error) {
	m.got = conversation
	if m.err != nil {
		return "", m.err
	}
	return m.query, nil
}

// slowKnowledge blocks on the listed collections until the query context ends.
type slowKnowledge struct {
	mockKnowledge
	slow map[string]bool
}

func (s *slowKnowledge) Query(ctx context.Context, collection, text string, topK int) ([]model.Passage, error) {
	if s.slow[collection] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.mockKnowledge.Query(ctx, collection, text, topK)
}

// blockingOptimizer never answers before its context ends.
type blockingOptimizer struct{}

func (blockingOptimizer) Enabled() bool { return true }

func (blockingOptimizer) RewriteQuery(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
