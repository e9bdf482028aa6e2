package liveController

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"stockpulse/middleware"
	"stockpulse/ws"
)

// WebsocketUpgrade authenticates the connection before the protocol switch.
// Browsers cannot set headers on websocket requests, so the token may come
// from the `token` query parameter as well as the Authorization header.
func WebsocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = auth[len("Bearer "):]
		}
	}

	claims, err := middleware.ParseToken(token)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Invalid or expired token", nil)
	}

	userID, ok := claims["userId"].(float64)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Invalid or expired token", nil)
	}

	c.Locals("userId", uint(userID))
	return c.Next()
}

// Handler runs the live connection for the authenticated user.
var Handler = websocket.New(func(conn *websocket.Conn) {
	userID, ok := conn.Locals("userId").(uint)
	if !ok {
		conn.Close()
		return
	}
	ws.Serve(ws.MainHub, conn, userID)
})
