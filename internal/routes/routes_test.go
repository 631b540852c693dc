package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/config"
)

// The ws endpoint carries its own auth (token query param or Bearer header);
// it must not sit behind the Bearer-only middleware, or browser clients
// could never upgrade.
func TestWebSocketRouteNotBehindBearerGuard(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, &config.Config{JWTSecret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	// WebSocketAuth answered, not the Bearer guard: a plain GET without an
	// Authorization header reaches the upgrade check instead of getting 401.
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

func TestRestRoutesStayBehindBearerGuard(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, &config.Config{JWTSecret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
