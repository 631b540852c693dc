package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func parseActorID(c *fiber.Ctx) (int64, error) {
	raw, ok := c.Locals("user_id").(string)
	if !ok || raw == "" {
		return 0, errors.New("missing user id")
	}
	actorID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || actorID <= 0 {
		return 0, errors.New("invalid user id")
	}
	return actorID, nil
}

func parsePositiveInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
