// Package health serves the liveness and status endpoints of the HTTP front door.
package health

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/m3rciful/voxbot/core/buildinfo"
)

// Name is reported by the root endpoint.
const Name = "voxbot"

// Memory is a subset of runtime.MemStats, in bytes.
type Memory struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heap_inuse"`
	NumGC      uint32 `json:"num_gc"`
}

// Report is the /health body.
type Report struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Memory        Memory  `json:"memory"`
	Goroutines    int     `json:"goroutines"`
}

// Root is the / body.
type Root struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Handler exposes process liveness.
type Handler struct {
	started time.Time
	now     func() time.Time
}

// NewHandler returns a handler measuring uptime from started.
func NewHandler(started time.Time) *Handler {
	return &Handler{started: started, now: time.Now}
}

// Register mounts GET / and GET /health on app.
func (h *Handler) Register(app fiber.Router) {
	app.Get("/", h.root)
	app.Get("/health", h.health)
}

// Snapshot collects the current report.
func (h *Handler) Snapshot() Report {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Report{
		Status:        "ok",
		UptimeSeconds: h.now().Sub(h.started).Seconds(),
		Memory: Memory{
			Alloc:      ms.Alloc,
			TotalAlloc: ms.TotalAlloc,
			Sys:        ms.Sys,
			HeapInuse:  ms.HeapInuse,
			NumGC:      ms.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
	}
}

func (h *Handler) health(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(h.Snapshot())
}

func (h *Handler) root(c *fiber.Ctx) error {
	return c.JSON(Root{Name: Name, Status: "running", Version: buildinfo.Version})
}
