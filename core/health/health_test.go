package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.Register(app)
	return app
}

func TestHealthReport(t *testing.T) {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHandler(started)
	h.now = func() time.Time { return started.Add(90 * time.Second) }

	resp, err := newApp(h).Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got Report
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "ok" || got.UptimeSeconds != 90 {
		t.Fatalf("report = %+v", got)
	}
	if got.Goroutines <= 0 || got.Memory.Sys == 0 {
		t.Fatalf("runtime stats missing: %+v", got)
	}
}

func TestRoot(t *testing.T) {
	resp, err := newApp(NewHandler(time.Now())).Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got Root
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "voxbot" || got.Status != "running" || got.Version == "" {
		t.Fatalf("root = %+v", got)
	}
}

func TestHealthRejectsPost(t *testing.T) {
	resp, err := newApp(NewHandler(time.Now())).Test(httptest.NewRequest(http.MethodPost, "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
