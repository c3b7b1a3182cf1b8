package routes

import (
	"ilmhub_go/controllers"
	"ilmhub_go/database"
	"ilmhub_go/handlers"
	"ilmhub_go/middleware"
	"ilmhub_go/services"
	"ilmhub_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, wsHub *websocket.Hub, healthService *services.HealthService) {
	// Initialize controllers
	authController := &controllers.AuthController{}
	sessionController := &controllers.SessionController{}
	attendanceController := &controllers.AttendanceController{}
	reportController := &controllers.ReportController{}
	subscriptionController := &controllers.SubscriptionController{}
	payoutController := &controllers.PayoutController{}
	teacherController := &controllers.TeacherController{}
	notificationController := &controllers.NotificationController{}
	archiveController := &controllers.ArchiveController{}
	settingsController := controllers.NewSettingsController()
	healthController := controllers.NewHealthController(healthService)
	wsController := controllers.NewWebSocketController(wsHub)
	webhookHandler := handlers.NewMeetingWebhookHandler(database.DB)

	// API group
	api := app.Group("/api")

	// Health (no authentication)
	api.Get("/health", healthController.GetHealthStatus)

	// Meeting provider webhook (HMAC-verified, no JWT)
	webhooks := api.Group("/webhooks")
	webhooks.Post("/meeting", webhookHandler.Handle)

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/profile", middleware.JWTMiddleware(), authController.GetProfile)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())

	protected.Get("/profile", authController.GetProfile)
	protected.Put("/profile/password", authController.ChangePassword)
	protected.Post("/auth/logout", authController.Logout)

	// User management
	users := protected.Group("/users")
	users.Post("/", middleware.RequireOwnerOrAdmin(), authController.Register)

	// Session lifecycle
	sessions := protected.Group("/sessions")
	sessions.Post("/", middleware.RequireTeacherOrAbove(), sessionController.CreateSession)
	sessions.Get("/:kind", middleware.RequireTeacherOrAbove(), sessionController.GetSessions)
	sessions.Get("/:kind/:id", sessionController.GetSession)
	sessions.Post("/:kind/:id/schedule", middleware.RequireTeacherOrAbove(), sessionController.ScheduleSession)
	sessions.Post("/:kind/:id/reschedule", middleware.RequireTeacherOrAbove(), sessionController.RescheduleSession)
	sessions.Post("/:kind/:id/cancel", middleware.RequireTeacherOrAbove(), sessionController.CancelSession)
	sessions.Post("/:kind/:id/end", middleware.RequireTeacherOrAbove(), sessionController.EndSession)

	// Attendance event log and summaries
	sessions.Get("/:kind/:id/events", middleware.RequireTeacherOrAbove(), attendanceController.GetSessionEvents)
	sessions.Get("/:kind/:id/attendance", middleware.RequireTeacherOrAbove(), attendanceController.GetSessionSummaries)
	sessions.Post("/:kind/:id/attendance/recompute", middleware.RequireOwnerOrAdmin(), attendanceController.RecomputeSummaries)
	sessions.Put("/:kind/:id/attendance/:user_id/override", middleware.RequireOwnerOrAdmin(), attendanceController.OverrideSummary)
	sessions.Delete("/:kind/:id/attendance/:user_id/override", middleware.RequireOwnerOrAdmin(), attendanceController.ClearSummaryOverride)

	// Session reports and homework
	sessions.Get("/:kind/:id/reports", middleware.RequireTeacherOrAbove(), reportController.GetSessionReports)
	sessions.Put("/:kind/:id/reports/:user_id/override", middleware.RequireOwnerOrAdmin(), reportController.OverrideReport)
	sessions.Post("/:kind/:id/homework", reportController.SubmitHomework)

	reports := protected.Group("/reports")
	reports.Get("/students/:user_id", middleware.RequireTeacherOrAbove(), reportController.GetStudentReports)

	// Subscriptions
	subscriptions := protected.Group("/subscriptions", middleware.RequireTeacherOrAbove())
	subscriptions.Get("/", subscriptionController.GetSubscriptions)
	subscriptions.Get("/:id", subscriptionController.GetSubscription)
	subscriptions.Post("/", middleware.RequireOwnerOrAdmin(), subscriptionController.CreateSubscription)
	subscriptions.Post("/:id/pause", middleware.RequireOwnerOrAdmin(), subscriptionController.PauseSubscription)
	subscriptions.Post("/:id/resume", middleware.RequireOwnerOrAdmin(), subscriptionController.ResumeSubscription)

	// Teachers and rates
	teachers := protected.Group("/teachers", middleware.RequireTeacherOrAbove())
	teachers.Get("/", teacherController.GetTeachers)
	teachers.Get("/:id", teacherController.GetTeacher)
	teachers.Put("/:id/rates", middleware.RequireOwnerOrAdmin(), teacherController.UpdateTeacherRates)

	// Earnings and payouts (admin surfaces)
	earnings := protected.Group("/earnings", middleware.RequireOwnerOrAdmin())
	earnings.Get("/", payoutController.GetEarnings)
	earnings.Post("/:id/dispute", payoutController.DisputeEarning)

	payouts := protected.Group("/payouts", middleware.RequireOwnerOrAdmin())
	payouts.Get("/", payoutController.GetPayouts)
	payouts.Get("/:id", payoutController.GetPayout)
	payouts.Post("/group", payoutController.RunPayoutGrouping)
	payouts.Post("/:id/approve", payoutController.ApprovePayout)
	payouts.Post("/:id/reject", payoutController.RejectPayout)
	payouts.Post("/:id/statement", payoutController.ExportStatement)

	// Academy settings
	settings := protected.Group("/settings")
	settings.Get("/", middleware.RequireTeacherOrAbove(), settingsController.GetSettings)
	settings.Put("/", middleware.RequireOwnerOrAdmin(), settingsController.UpdateSettings)

	// Notifications
	notifications := protected.Group("/notifications")
	notifications.Get("/", notificationController.GetNotifications)
	notifications.Get("/unread-count", notificationController.GetUnreadCount)
	notifications.Put("/:id/read", notificationController.MarkAsRead)
	notifications.Put("/read-all", notificationController.MarkAllAsRead)

	// Archives (admin only)
	archives := protected.Group("/archives", middleware.RequireOwnerOrAdmin())
	archives.Get("/", archiveController.GetArchives)
	archives.Get("/:id/download", archiveController.DownloadArchive)

	// WebSocket stats (admin only)
	protected.Get("/ws/stats", middleware.RequireOwnerOrAdmin(), wsController.GetWebSocketStats)

	// WebSocket endpoint (token passed via query parameter)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", wsController.WebSocketHandler())
}
