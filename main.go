package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"stockpulse/config"
	"stockpulse/database"
	"stockpulse/marketdata"
	"stockpulse/reconcile"
	authRoutes "stockpulse/routers/authRoutes"
	stockRoutes "stockpulse/routers/stockRoutes"
	userRoutes "stockpulse/routers/userRoutes"
	"stockpulse/utils"
	"stockpulse/ws"
)

func main() {
	config.LoadConfig()
	database.ConnectDb()

	reconcile.Init(database.Database.Db, marketdata.NewClient(), ws.MainHub)
	utils.InitializeUpdateScheduler(reconcile.Default)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE",
		AllowHeaders: "Content-Type,Authorization",
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	authRoutes.SetupAuthRoutes(app)
	userRoutes.SetupUserRoutes(app)
	stockRoutes.SetupStockRoutes(app)

	log.Printf("Server is running on port %s", config.AppConfig.Port)
	log.Fatal(app.Listen(":" + config.AppConfig.Port))
}
