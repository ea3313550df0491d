package middleware

import (
	"sync"

	"github.com/gofiber/fiber/v2"
)

// Serialize lets one request at a time through every route that shares mu.
// Conversation turns and document ingestion use the same lock so a turn
// never reads an index that is being rebuilt.
func Serialize(mu *sync.Mutex) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mu.Lock()
		defer mu.Unlock()
		return c.Next()
	}
}
