// Package connector adapts one completion call to a concrete LLM backend.
package connector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/katakuxiko/assistgw/internal/model"
)

// Response - целый ответ модели
type Response struct {
	Model        string
	Content      string
	FinishReason string
	Usage        *model.Usage
}

// Chunk - единый формат фрагмента потока для всех бэкендов
type Chunk struct {
	DeltaText    string
	FinishReason string
	Usage        *model.Usage
}

// Stream is a pull-based chunk iterator. Recv returns io.EOF after the last
// chunk. Close releases the underlying connection and may be called at any time.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Connector executes exactly one call against one backend. It never retries.
type Connector interface {
	Complete(ctx context.Context, model string, messages []model.Message) (*Response, error)
	Stream(ctx context.Context, model string, messages []model.Message) (Stream, error)
}

// Kind classifies backend failures for the fallback engine.
type Kind string

const (
	KindAuth          Kind = "auth"
	KindModelNotFound Kind = "model_not_found"
	KindRateLimit     Kind = "rate_limit"
	KindTransient     Kind = "transient"
)

// Error - классифицированная ошибка бэкенда
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err may trigger one fallback attempt.
func Retryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// classifyStatus maps an HTTP status of a backend reply to a Kind.
func classifyStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404:
		return KindModelNotFound
	case status == 429:
		return KindRateLimit
	default:
		return KindTransient
	}
}

// secretsOf lists strings that must never reach a caller: the key, the
// base URL and its host.
func secretsOf(apiKey, baseURL string) []string {
	out := []string{apiKey, baseURL}
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		out = append(out, u.Host)
	}
	return out
}

// Name - закрытый набор коннекторов
type Name string

const (
	NameOpenAI Name = "openai"
	NameLocal  Name = "local"
	NameBypass Name = "bypass"
)

// ParseName resolves a pipeline connector name. Unknown names are a
// configuration error, never a silent default.
func ParseName(s string) (Name, error) {
	switch s {
	case "openai", "":
		return NameOpenAI, nil
	case "local", "ollama":
		return NameLocal, nil
	case "bypass":
		return NameBypass, nil
	}
	return "", model.NewConfigurationError("unknown connector %q", s)
}

// Provider returns the provider key used to look up credentials.
func (n Name) Provider() string { return string(n) }

// New builds the connector variant for a resolved provider configuration.
func New(name Name, cfg model.ProviderConfig, timeout time.Duration) (Connector, error) {
	switch name {
	case NameOpenAI:
		return NewOpenAI(cfg), nil
	case NameLocal:
		return NewLocal(cfg.BaseURL, timeout), nil
	case NameBypass:
		return NewBypass(), nil
	}
	return nil, model.NewConfigurationError("unknown connector %q", name)
}
