package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAssistantNotFound - запрошенный ассистент не существует
var ErrAssistantNotFound = errors.New("assistant not found")

// ConfigurationError - фатальная ошибка настройки (организация, провайдер, шаблон).
// Никогда не повторяется.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ProviderFailureError - основная и запасная модели не ответили
type ProviderFailureError struct {
	Provider string
	Attempts []FallbackAttempt
}

func (e *ProviderFailureError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "provider %q failed after %d attempt(s)", e.Provider, len(e.Attempts))
	for i, a := range e.Attempts {
		fmt.Fprintf(&sb, "; #%d model %q: %s", i+1, a.Model, a.Outcome)
		if a.Detail != "" {
			sb.WriteString(" (" + a.Detail + ")")
		}
	}
	return sb.String()
}

// StreamInterruptedError - поток оборвался после отправки первых данных клиенту
type StreamInterruptedError struct {
	Model string
	Err   error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream from model %q interrupted: %v", e.Model, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }

// RetrievalDegradedError описывает пропущенную коллекцию. Наружу не выходит, только в лог.
type RetrievalDegradedError struct {
	Collection string
	Err        error
}

func (e *RetrievalDegradedError) Error() string {
	return fmt.Sprintf("retrieval degraded for collection %q: %v", e.Collection, e.Err)
}

func (e *RetrievalDegradedError) Unwrap() error { return e.Err }
