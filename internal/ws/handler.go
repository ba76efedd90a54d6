package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// LocalUserID is the fiber local the auth middleware stores the user id in.
const LocalUserID = "user_id"

// Handler upgrades an authenticated request and attaches the connection to
// the user's notification stream.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(LocalUserID).(uuid.UUID)
		if !ok {
			_ = conn.Close()
			return
		}
		newClient(hub, conn, userID).serve()
	})
}

// UpgradeMiddleware answers 426 to plain HTTP requests on the websocket route.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
}
