package connector

import (
	"context"
	"io"
	"strings"

	"github.com/katakuxiko/assistgw/internal/model"
)

// Bypass echoes the last user message back without any network I/O.
// Used for deterministic tests and smoke checks of the pipeline.
type Bypass struct{}

func NewBypass() *Bypass { return &Bypass{} }

func (Bypass) Complete(ctx context.Context, name string, messages []model.Message) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := echoText(messages)
	n := len(strings.Fields(text))
	return &Response{
		Model:        name,
		Content:      text,
		FinishReason: "stop",
		Usage:        &model.Usage{CompletionTokens: n, TotalTokens: n},
	}, nil
}

func (Bypass) Stream(ctx context.Context, name string, messages []model.Message) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := echoText(messages)
	return &bypassStream{ctx: ctx, parts: strings.SplitAfter(text, " ")}, nil
}

type bypassStream struct {
	ctx   context.Context
	parts []string
	pos   int
	ended bool
}

func (s *bypassStream) Recv() (Chunk, error) {
	if err := s.ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.pos < len(s.parts) {
		p := s.parts[s.pos]
		s.pos++
		return Chunk{DeltaText: p}, nil
	}
	if !s.ended {
		s.ended = true
		return Chunk{FinishReason: "stop"}, nil
	}
	return Chunk{}, io.EOF
}

func (s *bypassStream) Close() error {
	s.pos = len(s.parts)
	s.ended = true
	return nil
}

func echoText(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}
