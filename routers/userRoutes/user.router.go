package userRoutes

import (
	"github.com/gofiber/fiber/v2"

	userControllers "stockpulse/controllers/user"
	"stockpulse/middleware"
)

func SetupUserRoutes(app *fiber.App) {
	userGroup := app.Group("/users")

	userGroup.Get("/", middleware.JWTMiddleware, middleware.AdminOnly, userControllers.ListUsers)
	userGroup.Get("/:id", middleware.JWTMiddleware, userControllers.GetUser)
	userGroup.Patch("/:id", middleware.JWTMiddleware, userControllers.PatchUser)
	userGroup.Delete("/:id", middleware.JWTMiddleware, userControllers.DeleteUser)
}
