package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/katakuxiko/assistgw/internal/model"
	"github.com/katakuxiko/assistgw/internal/util"
)

const (
	summaryMaxMessages = 10
	summaryMaxRunes    = 500
)

// Retriever turns a conversation into context passages. It never fails:
// degraded retrieval yields fewer (or zero) passages.
type Retriever interface {
	Retrieve(ctx context.Context, history []model.Message, a *model.Assistant) model.RetrievalResult
}

// RAGProcessor - закрытый набор вариантов поиска
type RAGProcessor string

const (
	RAGNone           RAGProcessor = "none"
	RAGDirect         RAGProcessor = "direct"
	RAGConversational RAGProcessor = "conversational"
)

// ParseRAGProcessor resolves a pipeline rag processor name.
func ParseRAGProcessor(s string) (RAGProcessor, error) {
	switch s {
	case "", "none":
		return RAGNone, nil
	case "direct", "default":
		return RAGDirect, nil
	case "conversational", "conversation_aware":
		return RAGConversational, nil
	}
	return "", model.NewConfigurationError("unknown rag processor %q", s)
}

// DirectQuery returns the text of the most recent user message.
func DirectQuery(history []model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			return strings.TrimSpace(history[i].Text())
		}
	}
	return ""
}

// DirectRetriever searches with the last user turn as is.
type DirectRetriever struct {
	store   KnowledgeStore
	timeout time.Duration
}

func NewDirectRetriever(store KnowledgeStore, timeout time.Duration) *DirectRetriever {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectRetriever{store: store, timeout: timeout}
}

func (d *DirectRetriever) Retrieve(ctx context.Context, history []model.Message, a *model.Assistant) model.RetrievalResult {
	return d.search(ctx, DirectQuery(history), a)
}

// search queries every collection in order and concatenates the results.
// A failing collection is logged and skipped.
func (d *DirectRetriever) search(ctx context.Context, query string, a *model.Assistant) model.RetrievalResult {
	res := model.RetrievalResult{Query: query}
	if d.store == nil || query == "" || a.RAGTopK <= 0 || len(a.RAGCollections) == 0 {
		return res
	}
	for _, coll := range a.RAGCollections {
		if ctx.Err() != nil {
			break
		}
		passages, err := d.queryOne(ctx, coll, query, a.RAGTopK)
		res.CollectionsQueried = append(res.CollectionsQueried, coll)
		if err != nil {
			log.Printf("[WARN] %v", &model.RetrievalDegradedError{Collection: coll, Err: err})
			continue
		}
		res.Passages = append(res.Passages, passages...)
	}
	return res
}

func (d *DirectRetriever) queryOne(ctx context.Context, coll, query string, k int) ([]model.Passage, error) {
	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	passages, err := d.store.Query(qctx, coll, query, k)
	if err != nil {
		return nil, err
	}
	for i := range passages {
		if passages[i].Collection == "" {
			passages[i].Collection = coll
		}
	}
	return passages, nil
}

// ConversationalRetriever asks a small optimizer model to rewrite the
// conversation into one search query, and falls back to the direct query
// when the optimizer is off or fails.
type ConversationalRetriever struct {
	direct    *DirectRetriever
	optimizer QueryOptimizer
	timeout   time.Duration
}

func NewConversationalRetriever(direct *DirectRetriever, optimizer QueryOptimizer, timeout time.Duration) *ConversationalRetriever {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ConversationalRetriever{direct: direct, optimizer: optimizer, timeout: timeout}
}

func (c *ConversationalRetriever) Retrieve(ctx context.Context, history []model.Message, a *model.Assistant) model.RetrievalResult {
	if a.RAGTopK <= 0 || len(a.RAGCollections) == 0 {
		return model.RetrievalResult{Query: DirectQuery(history)}
	}
	return c.direct.search(ctx, c.Query(ctx, history), a)
}

// Query returns the optimized query or, on any optimizer problem, exactly
// what DirectQuery would return.
func (c *ConversationalRetriever) Query(ctx context.Context, history []model.Message) string {
	fallback := DirectQuery(history)
	if c.optimizer == nil || !c.optimizer.Enabled() {
		util.Debugf("query optimizer disabled, using last user turn")
		return fallback
	}

	octx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	q, err := c.optimizer.RewriteQuery(octx, SummarizeConversation(history))
	if err != nil {
		util.Debugf("query optimizer failed, using last user turn: %v", err)
		return fallback
	}
	q = cleanQuery(q)
	if q == "" {
		util.Debugf("query optimizer returned empty query, using last user turn")
		return fallback
	}
	util.Debugf("optimized query %q (direct %q)", q, fallback)
	return q
}

// SummarizeConversation renders at most the last 10 non-system messages,
// each cut to 500 runes, one "role: text" line per message.
func SummarizeConversation(history []model.Message) string {
	var turns []model.Message
	for _, m := range history {
		if m.Role != model.RoleSystem {
			turns = append(turns, m)
		}
	}
	if len(turns) > summaryMaxMessages {
		turns = turns[len(turns)-summaryMaxMessages:]
	}
	var sb strings.Builder
	for _, m := range turns {
		text := strings.Join(strings.Fields(m.Text()), " ")
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, util.TruncateRunes(text, summaryMaxRunes))
	}
	return sb.String()
}

// cleanQuery keeps the first non-empty line without wrapping quotes or labels.
func cleanQuery(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.Index(line, ":"); i >= 0 && strings.EqualFold(strings.TrimSpace(line[:i]), "query") {
			line = strings.TrimSpace(line[i+1:])
		}
		return strings.Trim(line, "\"'`")
	}
	return ""
}
