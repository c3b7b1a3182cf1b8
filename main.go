package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ilmhub_go/config"
	"ilmhub_go/database"
	"ilmhub_go/middleware"
	"ilmhub_go/routes"
	"ilmhub_go/services"
	"ilmhub_go/services/notifications"
	"ilmhub_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const serviceVersion = "1.0.0"

func init() {
	setupLogging()
	config.LoadConfig()
	database.Connect()
}

func main() {
	startTime := time.Now()

	// WebSocket hub carries real-time notifications to connected clients
	wsHub := websocket.NewHub()
	go wsHub.Run()

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Meeting-Signature",
	}))

	// Custom middleware
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	// Wire notifications to the WebSocket hub globally so any new Service
	// uses it, including the background schedulers.
	notifications.SetDefaultWSHub(wsHub)
	notifService := notifications.NewService()
	notifService.SetWebSocketHub(wsHub)
	stop := make(chan struct{})
	if config.AppConfig.UseRedisNotifications {
		notifService.StartWorker(stop)
	}

	// Lifecycle sweeps, monthly payout grouping and archive flushes
	sweeper := services.NewSweepScheduler()
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start sweep scheduler: %v", err)
	}

	// Upcoming-session reminders
	reminders := services.NewReminderScheduler()
	go reminders.Start(stop)

	healthService := services.NewHealthService("", serviceVersion)
	healthService.SetStartTime(startTime)

	routes.SetupRoutes(app, wsHub, healthService)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	// Graceful shutdown: stop cron and workers, then drain Fiber
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logrus.Info("Shutdown signal received")
		close(stop)
		sweeper.Stop()
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Error("Server shutdown error")
		}
	}()

	addr := ":" + config.AppConfig.Port
	logrus.WithFields(logrus.Fields{
		"port":        config.AppConfig.Port,
		"environment": config.AppConfig.AppEnv,
		"version":     serviceVersion,
	}).Info("Server starting")

	if err := app.Listen(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}

	database.Close()
}

// setupLogging configures the logging system
func setupLogging() {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "" {
		logrus.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile("logs/app.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logrus.SetOutput(file)
		}
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
