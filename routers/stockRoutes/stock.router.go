package stockRoutes

import (
	"github.com/gofiber/fiber/v2"

	liveControllers "stockpulse/controllers/live"
	stockControllers "stockpulse/controllers/stock"
	"stockpulse/middleware"
	stockValidators "stockpulse/validators/stock"
)

func SetupStockRoutes(app *fiber.App) {
	stockGroup := app.Group("/stock")

	stockGroup.Get("/prices", middleware.JWTMiddleware, stockControllers.GetStockPrices)
	stockGroup.Get("/followed", middleware.JWTMiddleware, stockControllers.GetFollowedStocks)
	stockGroup.Post("/follow", stockValidators.Follow(), middleware.JWTMiddleware, stockControllers.FollowStock)
	stockGroup.Delete("/follow", stockValidators.Follow(), middleware.JWTMiddleware, stockControllers.UnfollowStock)
	stockGroup.Post("/request", stockValidators.RequestStock(), middleware.JWTMiddleware, stockControllers.RequestStock)
	stockGroup.Post("/refresh/:symbol", middleware.JWTMiddleware, middleware.AdminOnly, stockControllers.RefreshStock)

	app.Get("/ws", liveControllers.WebsocketUpgrade, liveControllers.Handler)
}
