package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/katakuxiko/assistgw/internal/connector"
	"github.com/katakuxiko/assistgw/internal/model"
	"github.com/katakuxiko/assistgw/internal/service"
	"github.com/katakuxiko/assistgw/internal/util"
)

// Handler хранит зависимости для обработчиков
type Handler struct {
	orch *service.Orchestrator
}

// NewHandler конструктор
func NewHandler(orch *service.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Health - простая проверка
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// ListModels - ассистенты в виде списка моделей OpenAI
func (h *Handler) ListModels(c *fiber.Ctx) error {
	assistants, err := h.orch.ListAssistants(c.UserContext())
	if err != nil {
		log.Printf("[ERROR] list assistants: %v", err)
		return sendError(c, fiber.StatusInternalServerError, "internal_error", "failed to list models")
	}
	out := modelList{Object: "list", Data: make([]modelEntry, 0, len(assistants))}
	for _, a := range assistants {
		out.Data = append(out.Data, modelEntry{
			ID:           a.ID,
			Object:       "model",
			OwnedBy:      a.OrganizationID,
			Name:         a.Name,
			Capabilities: h.orch.Capabilities(a),
		})
	}
	return c.JSON(out)
}

// ChatCompletions - OpenAI-совместимый чат: целый ответ или SSE-поток
func (h *Handler) ChatCompletions(c *fiber.Ctx) error {
	var body chatRequest
	if err := c.BodyParser(&body); err != nil {
		return sendError(c, fiber.StatusBadRequest, "invalid_request_error", "invalid JSON body: "+err.Error())
	}
	req, err := body.toModel()
	if err != nil {
		return writeError(c, err)
	}

	// поток дописывается уже после выхода из обработчика, поэтому cancel вызывает writer
	ctx, cancel := context.WithCancel(c.UserContext())
	res, err := h.orch.Complete(ctx, req)
	if err != nil {
		cancel()
		return writeError(c, err)
	}

	c.Set("X-Resolved-Model", res.Model)
	if res.Warning != "" {
		c.Set("X-Fallback-Warning", headerSafe(res.Warning))
	}
	id, created := newCompletionID(), time.Now().Unix()

	if !req.Stream {
		defer cancel()
		return c.JSON(buildCompletion(id, created, res))
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		streamTo(w, res.Stream, cancel, id, created, res.Assistant.ID)
	})
	return nil
}

// streamTo owns the stream: it is closed and the call context cancelled
// however pumping ends, including a client that went away.
func streamTo(w *bufio.Writer, s connector.Stream, cancel context.CancelFunc, id string, created int64, assistantID string) {
	defer cancel()
	defer s.Close()
	pumpStream(w, s, id, created, assistantID)
}

// pumpStream writes chunks as SSE events. A failed flush means the client
// is gone; the deferred cancel then stops the backend call.
func pumpStream(w *bufio.Writer, s connector.Stream, id string, created int64, assistantID string) {
	chunk := func(delta chunkDelta, finish string) chatCompletionChunk {
		ch := chunkChoice{Delta: delta}
		if finish != "" {
			ch.FinishReason = &finish
		}
		return chatCompletionChunk{ID: id, Object: "chat.completion.chunk", Created: created, Model: assistantID, Choices: []chunkChoice{ch}}
	}

	if err := writeEvent(w, chunk(chunkDelta{Role: model.RoleAssistant}, "")); err != nil {
		util.Debugf("client left before first chunk: %v", err)
		return
	}

	finished := false
	for {
		part, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("[WARN] %s: %v", assistantID, err)
			writeEvent(w, errorBody{Error: errorDetail{Message: err.Error(), Type: "stream_error"}})
			return
		}
		if part.DeltaText == "" && part.FinishReason == "" {
			continue
		}
		if part.FinishReason != "" {
			finished = true
		}
		if err := writeEvent(w, chunk(chunkDelta{Content: part.DeltaText}, part.FinishReason)); err != nil {
			util.Debugf("client left mid-stream: %v", err)
			return
		}
	}

	if !finished {
		if err := writeEvent(w, chunk(chunkDelta{}, "stop")); err != nil {
			return
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
}

func writeEvent(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

// writeError переводит ошибку сервиса в HTTP-ответ {error:{message,type}}
func writeError(c *fiber.Ctx, err error) error {
	var cfgErr *model.ConfigurationError
	var pf *model.ProviderFailureError
	switch {
	case errors.As(err, &cfgErr):
		return sendError(c, fiber.StatusBadRequest, "configuration_error", cfgErr.Error())
	case errors.Is(err, model.ErrAssistantNotFound):
		return sendError(c, fiber.StatusNotFound, "invalid_request_error", err.Error())
	case errors.Is(err, service.ErrBadRequest):
		return sendError(c, fiber.StatusBadRequest, "invalid_request_error", err.Error())
	case errors.As(err, &pf):
		return sendError(c, fiber.StatusBadGateway, "provider_error", pf.Error())
	}
	log.Printf("[ERROR] chat completion: %v", err)
	return sendError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
}

func sendError(c *fiber.Ctx, status int, typ, msg string) error {
	return c.Status(status).JSON(errorBody{Error: errorDetail{Message: msg, Type: typ}})
}
