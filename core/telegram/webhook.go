package telegram

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/m3rciful/voxbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// SecretHeader carries the secret token Telegram echoes on webhook calls.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const pushTimeout = 5 * time.Second

// WebhookHandler accepts Telegram webhook calls and feeds an UpdateQueue.
type WebhookHandler struct {
	queue  *UpdateQueue
	path   string
	secret string
}

// NewWebhookHandler binds the handler to the path of publicURL.
func NewWebhookHandler(queue *UpdateQueue, publicURL, secret string) *WebhookHandler {
	return &WebhookHandler{queue: queue, path: WebhookPath(publicURL), secret: secret}
}

// WebhookPath returns the request path Telegram will POST to.
func WebhookPath(publicURL string) string {
	u, err := url.Parse(publicURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// Register mounts the webhook route.
func (h *WebhookHandler) Register(app fiber.Router) {
	app.Post(h.path, h.receive)
}

func (h *WebhookHandler) receive(c *fiber.Ctx) error {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.Get(SecretHeader)), []byte(h.secret)) != 1 {
		logger.HTTP.LogAttrs(c.UserContext(), slog.LevelWarn, "",
			slog.String("event", "webhook.reject"),
			slog.String("status", "fail"),
			slog.String("cause", "secret_mismatch"),
			slog.String("ip", c.IP()),
		)
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var upd tele.Update
	if err := c.BodyParser(&upd); err != nil {
		logger.HTTP.LogAttrs(c.UserContext(), slog.LevelWarn, "",
			slog.String("event", "webhook.decode"),
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return c.SendStatus(fiber.StatusBadRequest)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), pushTimeout)
	defer cancel()
	if err := h.queue.Push(ctx, upd); err != nil {
		logger.HTTP.LogAttrs(ctx, slog.LevelWarn, "",
			slog.String("event", "webhook.enqueue"),
			slog.String("status", "fail"),
			slog.Int("update_id", upd.ID),
			slog.String("err", err.Error()),
		)
		// Telegram redelivers on non-2xx.
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	return c.SendStatus(fiber.StatusOK)
}
