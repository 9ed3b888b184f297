package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"bizadmin-backend/internal/bootstrap"
	"bizadmin-backend/internal/transport/http/handler"
	"bizadmin-backend/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestLogger(app.Logger.WithField("module", "http"), app.Metrics),
		middleware.Recovery(app.Logger),
	)

	healthHandler := handler.NewHealthHandler(gin.H{
		"app":     app.Config.App.Name,
		"env":     app.Config.App.Env,
		"storage": app.Config.Storage.Backend,
	}, app.StartedAt, healthChecks(app)...)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	if app.Config.Storage.Backend == "local" && app.Config.Storage.PublicBaseURL != "" {
		router.Static(app.Config.Storage.PublicBaseURL, app.Config.Storage.LocalRoot)
	}

	authHandler := handler.NewAuthHandler(app.Auth)
	documentHandler := handler.NewDocumentHandler(
		app.Ledger,
		app.Query,
		app.Archive,
		int64(app.Config.Documents.MaxUploadMB)<<20,
		app.Logger.WithField("module", "documents"),
	)
	notificationHandler := handler.NewNotificationHandler(
		app.Notifications,
		app.Notifier,
		app.Location,
		app.Logger.WithField("module", "notifications"),
	)
	authRequired := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authRequired, authHandler.Me)

	RegisterDocumentRoutes(v1.Group("/documents", authRequired), documentHandler)
	RegisterNotificationRoutes(v1.Group("/notifications", authRequired), notificationHandler)

	return router
}

func healthChecks(app *bootstrap.App) []handler.HealthCheck {
	return []handler.HealthCheck{
		{Name: "mysql", Ping: func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		// the ledger keeps serving when only the projection cache is down
		{Name: "redis", Optional: true, Ping: func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}},
		{Name: "rabbitmq", Ping: func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}},
		{Name: "storage", Ping: func(ctx context.Context) error {
			_, err := app.Blobs.Exists(ctx, "healthz/ping")
			return err
		}},
	}
}

// RegisterDocumentRoutes mounts the template endpoints under group.
func RegisterDocumentRoutes(group *gin.RouterGroup, h *handler.DocumentHandler) {
	templates := group.Group("/templates")
	templates.GET("", h.List)
	templates.POST("/upload-template", h.Upload)
	templates.GET("/download-version", h.DownloadVersionDirect)
	templates.POST("/bulk-download", h.BulkDownload)
	templates.GET("/:id", h.Get)
	templates.GET("/:id/download-version/:version_id", h.DownloadVersion)
	templates.GET("/:id/download-published", h.DownloadPublished)
}

func RegisterNotificationRoutes(group *gin.RouterGroup, h *handler.NotificationHandler) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.POST("/bulk-mark-read", h.BulkMarkRead)
	group.POST("/:id/read", h.MarkRead)
	group.POST("/:id/cancel-scheduled", h.CancelScheduled)
}
