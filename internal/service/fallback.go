package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/katakuxiko/assistgw/internal/connector"
	"github.com/katakuxiko/assistgw/internal/model"
)

// ResolutionOutcome - итог предварительного выбора модели
type ResolutionOutcome int

const (
	ResolvedOK ResolutionOutcome = iota
	ResolvedSubstituted
	ResolvedFatal
)

// Resolution is the Phase A result: Ok(model) | Substituted(model, reason) | Fatal(reason).
type Resolution struct {
	Outcome ResolutionOutcome
	Model   string
	Reason  string
}

// ResolveModel picks the model to call without touching the network.
// AllowedModels order is authoritative for the "first available" pick.
func ResolveModel(requested string, cfg model.ProviderConfig) Resolution {
	if requested != "" && cfg.Allows(requested) {
		return Resolution{Outcome: ResolvedOK, Model: requested}
	}
	reason := fmt.Sprintf("model %q is not enabled for this organization", requested)
	if requested == "" {
		reason = "no model requested"
	}
	if cfg.DefaultModel != "" && cfg.Allows(cfg.DefaultModel) {
		return Resolution{Outcome: ResolvedSubstituted, Model: cfg.DefaultModel, Reason: reason}
	}
	if len(cfg.AllowedModels) > 0 {
		return Resolution{Outcome: ResolvedSubstituted, Model: cfg.AllowedModels[0], Reason: reason}
	}
	return Resolution{Outcome: ResolvedFatal, Reason: "no models enabled for this organization/provider"}
}

var errFirstChunkTimeout = errors.New("no response before provider timeout")

// Engine wraps connector calls with model resolution and one retry
// against the organization default model.
type Engine struct {
	timeout time.Duration
}

func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{timeout: timeout}
}

// Result - ответ движка: либо целый ответ, либо поток
type Result struct {
	Model    string
	Response *connector.Response
	Stream   connector.Stream
	Attempts []model.FallbackAttempt
	Warning  string
}

// Complete runs a whole-response call with fallback.
func (e *Engine) Complete(ctx context.Context, conn connector.Connector, cfg model.ProviderConfig, requested string, messages []model.Message) (*Result, error) {
	res := &Result{}
	err := e.run(ctx, cfg, requested, res, func(ctx context.Context, name string) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		resp, err := conn.Complete(callCtx, name, messages)
		if err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return e.timeoutError(err)
			}
			return err
		}
		res.Response = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Stream opens a stream with fallback. The first chunk is pulled before
// returning, so a backend that fails before producing output still gets the
// retry; failures after that surface as StreamInterruptedError from Recv.
func (e *Engine) Stream(ctx context.Context, conn connector.Connector, cfg model.ProviderConfig, requested string, messages []model.Message) (*Result, error) {
	res := &Result{}
	err := e.run(ctx, cfg, requested, res, func(ctx context.Context, name string) error {
		callCtx, cancel := context.WithCancelCause(ctx)
		timer := time.AfterFunc(e.timeout, func() { cancel(errFirstChunkTimeout) })

		s, err := conn.Stream(callCtx, name, messages)
		var first connector.Chunk
		if err == nil {
			first, err = s.Recv()
			if err != nil && !errors.Is(err, io.EOF) {
				s.Close()
			}
		}
		if !timer.Stop() && (err == nil || errors.Is(err, io.EOF)) {
			// первый фрагмент пришёл, но контекст потока уже отменён таймером
			s.Close()
			err = errFirstChunkTimeout
		}

		if err != nil && !errors.Is(err, io.EOF) {
			cause := context.Cause(callCtx)
			cancel(nil)
			if errors.Is(cause, errFirstChunkTimeout) && ctx.Err() == nil {
				return e.timeoutError(err)
			}
			return err
		}
		res.Stream = &engineStream{
			inner:   s,
			model:   name,
			first:   first,
			pending: err == nil,
			eof:     errors.Is(err, io.EOF),
			cancel:  func() { cancel(nil) },
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) timeoutError(err error) error {
	return &connector.Error{Kind: connector.KindTransient, Message: fmt.Sprintf("no response within %s", e.timeout), Err: err}
}

func (e *Engine) run(ctx context.Context, cfg model.ProviderConfig, requested string, res *Result, call func(context.Context, string) error) error {
	r := ResolveModel(requested, cfg)
	switch r.Outcome {
	case ResolvedFatal:
		return model.NewConfigurationError("%s (provider %q)", r.Reason, cfg.Provider)
	case ResolvedSubstituted:
		res.Attempts = append(res.Attempts, model.FallbackAttempt{Model: requested, Outcome: model.OutcomeNotAllowed, Detail: r.Reason})
		res.Warning = fmt.Sprintf("model %q is not enabled; substituted %q", requested, r.Model)
		log.Printf("[WARN] provider %q: %s, substituted %q", cfg.Provider, r.Reason, r.Model)
	}

	err := call(ctx, r.Model)
	if err == nil {
		res.Model = r.Model
		res.Attempts = append(res.Attempts, model.FallbackAttempt{Model: r.Model, Outcome: model.OutcomeSuccess})
		return nil
	}
	res.Attempts = append(res.Attempts, model.FallbackAttempt{Model: r.Model, Outcome: model.OutcomeAPIError, Detail: err.Error()})
	if ctx.Err() != nil {
		// клиент ушёл - повторять некому
		return ctx.Err()
	}

	fallback := cfg.DefaultModel
	if !connector.Retryable(err) || r.Model == fallback || !cfg.Allows(fallback) {
		return &model.ProviderFailureError{Provider: cfg.Provider, Attempts: res.Attempts}
	}

	log.Printf("[WARN] provider %q model %q failed (%v), retrying with default %q", cfg.Provider, r.Model, err, fallback)
	err = call(ctx, fallback)
	if err == nil {
		res.Model = fallback
		res.Attempts = append(res.Attempts, model.FallbackAttempt{Model: fallback, Outcome: model.OutcomeSuccess})
		res.Warning = fmt.Sprintf("model %q failed (%s); answered by default model %q", r.Model, res.Attempts[len(res.Attempts)-2].Detail, fallback)
		return nil
	}
	res.Attempts = append(res.Attempts, model.FallbackAttempt{Model: fallback, Outcome: model.OutcomeAPIError, Detail: err.Error()})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &model.ProviderFailureError{Provider: cfg.Provider, Attempts: res.Attempts}
}

// engineStream replays the prefetched first chunk, then delegates.
type engineStream struct {
	inner   connector.Stream
	model   string
	first   connector.Chunk
	pending bool
	eof     bool
	cancel  func()
}

func (s *engineStream) Recv() (connector.Chunk, error) {
	if s.pending {
		s.pending = false
		return s.first, nil
	}
	if s.eof {
		return connector.Chunk{}, io.EOF
	}
	c, err := s.inner.Recv()
	if errors.Is(err, io.EOF) {
		s.eof = true
		return connector.Chunk{}, io.EOF
	}
	if err != nil {
		return connector.Chunk{}, &model.StreamInterruptedError{Model: s.model, Err: err}
	}
	return c, nil
}

func (s *engineStream) Close() error {
	defer s.cancel()
	return s.inner.Close()
}
