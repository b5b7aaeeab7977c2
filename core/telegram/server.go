package telegram

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/m3rciful/voxbot/core/logger"
)

// Registrar mounts routes on the HTTP front door.
type Registrar interface {
	Register(app fiber.Router)
}

// Server is the HTTP front door serving health and webhook routes.
type Server struct {
	app  *fiber.App
	addr string
}

// NewServer builds a fiber app with the given routes mounted.
func NewServer(addr string, routes ...Registrar) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "voxbot",
		DisableStartupMessage: true,
	})
	for _, r := range routes {
		if r != nil {
			r.Register(app)
		}
	}
	return &Server{app: app, addr: addr}
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens in the background. The channel yields the listen error,
// if any, and is closed when the server stops.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		logger.HTTP.LogAttrs(context.Background(), slog.LevelInfo, "",
			slog.String("event", "http.listen"),
			slog.String("status", "ok"),
			slog.String("addr", s.addr),
		)
		if err := s.app.Listen(s.addr); err != nil {
			errc <- err
		}
	}()
	return errc
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
