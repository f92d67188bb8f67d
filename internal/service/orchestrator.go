package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/katakuxiko/assistgw/internal/connector"
	"github.com/katakuxiko/assistgw/internal/model"
)

// ConnectorFactory builds a connector for a resolved provider configuration.
type ConnectorFactory func(name connector.Name, cfg model.ProviderConfig) (connector.Connector, error)

// Deps - зависимости оркестратора
type Deps struct {
	Assistants       AssistantStore
	Resolver         *Resolver
	Engine           *Engine
	Knowledge        KnowledgeStore
	Optimizer        QueryOptimizer
	Connectors       ConnectorFactory
	KnowledgeTimeout time.Duration
	OptimizerTimeout time.Duration
}

// Orchestrator serves one chat completion: assistant lookup, provider
// resolution, retrieval, prompt assembly and the model call with fallback.
type Orchestrator struct {
	assistants AssistantStore
	resolver   *Resolver
	engine     *Engine
	connectors ConnectorFactory
	direct     *DirectRetriever
	convo      *ConversationalRetriever
}

func NewOrchestrator(d Deps) *Orchestrator {
	direct := NewDirectRetriever(d.Knowledge, d.KnowledgeTimeout)
	engine := d.Engine
	if engine == nil {
		engine = NewEngine(0)
	}
	return &Orchestrator{
		assistants: d.Assistants,
		resolver:   d.Resolver,
		engine:     engine,
		connectors: d.Connectors,
		direct:     direct,
		convo:      NewConversationalRetriever(direct, d.Optimizer, d.OptimizerTimeout),
	}
}

// Completion - результат для слоя API
type Completion struct {
	Assistant *model.Assistant
	Model     string
	Response  *connector.Response
	Stream    connector.Stream
	Attempts  []model.FallbackAttempt
	Warning   string
	Retrieval model.RetrievalResult
}

// pipeline holds the per-request variant choices, resolved once up front.
type pipeline struct {
	connector connector.Name
	prompt    PromptProcessor
	rag       RAGProcessor
}

func parsePipeline(p model.PipelineConfig) (pipeline, error) {
	var out pipeline
	var err error
	if out.connector, err = connector.ParseName(p.ConnectorName); err != nil {
		return out, err
	}
	if out.prompt, err = ParsePromptProcessor(p.PromptProcessorName); err != nil {
		return out, err
	}
	if out.rag, err = ParseRAGProcessor(p.RAGProcessorName); err != nil {
		return out, err
	}
	return out, nil
}

// Complete serves req. With req.Stream the returned Completion carries an
// open Stream whose first chunk is already known to exist; the caller must
// Close it.
func (o *Orchestrator) Complete(ctx context.Context, req model.CompletionRequest) (*Completion, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", ErrBadRequest)
	}

	a, err := o.assistants.GetAssistant(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	p, err := parsePipeline(a.Pipeline)
	if err != nil {
		return nil, err
	}
	cfg, err := o.resolver.Resolve(ctx, a.OrganizationID, p.connector.Provider())
	if err != nil {
		return nil, err
	}
	conn, err := o.connectors(p.connector, cfg)
	if err != nil {
		return nil, err
	}

	retrieval := o.retriever(p.rag).Retrieve(ctx, req.Messages, a)
	messages, err := Assemble(a.SystemPrompt, retrieval, a.PromptTemplate, req.Messages)
	if err != nil {
		return nil, err
	}

	var res *Result
	if req.Stream {
		res, err = o.engine.Stream(ctx, conn, cfg, a.Pipeline.ModelName, messages)
	} else {
		res, err = o.engine.Complete(ctx, conn, cfg, a.Pipeline.ModelName, messages)
	}
	if err != nil {
		var pf *model.ProviderFailureError
		if errors.As(err, &pf) {
			log.Printf("[ERROR] assistant %q: %v", a.ID, err)
		}
		return nil, err
	}

	log.Printf("[INFO] assistant %q answered by %s/%s (passages=%d, attempts=%d)", a.ID, cfg.Provider, res.Model, len(retrieval.Passages), len(res.Attempts))
	return &Completion{
		Assistant: a,
		Model:     res.Model,
		Response:  res.Response,
		Stream:    res.Stream,
		Attempts:  res.Attempts,
		Warning:   res.Warning,
		Retrieval: retrieval,
	}, nil
}

// ListAssistants returns assistants exposed as models.
func (o *Orchestrator) ListAssistants(ctx context.Context) ([]model.Assistant, error) {
	return o.assistants.ListAssistants(ctx)
}

// Capabilities - что умеет ассистент при текущей конфигурации сервера
type Capabilities struct {
	Streaming      bool `json:"streaming"`
	Retrieval      bool `json:"retrieval"`
	QueryOptimizer bool `json:"query_optimizer"`
}

func (o *Orchestrator) Capabilities(a model.Assistant) Capabilities {
	caps := Capabilities{Streaming: true}
	rag, err := ParseRAGProcessor(a.Pipeline.RAGProcessorName)
	if err != nil || rag == RAGNone {
		return caps
	}
	caps.Retrieval = o.direct.store != nil && a.RAGTopK > 0 && len(a.RAGCollections) > 0
	caps.QueryOptimizer = caps.Retrieval && rag == RAGConversational &&
		o.convo.optimizer != nil && o.convo.optimizer.Enabled()
	return caps
}

func (o *Orchestrator) retriever(kind RAGProcessor) Retriever {
	switch kind {
	case RAGDirect:
		return o.direct
	case RAGConversational:
		return o.convo
	}
	return noRetrieval{}
}

type noRetrieval struct{}

func (noRetrieval) Retrieve(_ context.Context, history []model.Message, _ *model.Assistant) model.RetrievalResult {
	return model.RetrievalResult{Query: DirectQuery(history)}
}

// ErrBadRequest marks malformed client input.
var ErrBadRequest = errors.New("bad request")

// DefaultConnectors builds real connectors with the provider timeout as
// the local backend's response-header timeout.
func DefaultConnectors(timeout time.Duration) ConnectorFactory {
	return func(name connector.Name, cfg model.ProviderConfig) (connector.Connector, error) {
		return connector.New(name, cfg, timeout)
	}
}
