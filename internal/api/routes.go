package api

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes вешает API и на корень, и на /v1, как ждут OpenAI-клиенты
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)

	for _, r := range []fiber.Router{app, app.Group("/v1")} {
		r.Get("/models", h.ListModels)
		r.Post("/chat/completions", h.ChatCompletions)
	}
}
