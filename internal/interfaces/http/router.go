package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Middleware struct {
	Auth          echo.MiddlewareFunc
	XRay          echo.MiddlewareFunc
	RequestLogger echo.MiddlewareFunc
}

// NewRouter wires the full HTTP surface. The status check, document download,
// login, and health endpoints are public; everything else sits behind the
// admin bearer token.
func NewRouter(apps *ApplicationsHandler, admin *AdminHandler, m Middleware) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	if m.XRay != nil {
		e.Use(m.XRay)
	}
	if m.RequestLogger != nil {
		e.Use(m.RequestLogger)
	}

	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(stdhttp.StatusOK, map[string]string{"status": "OK", "message": "Server is running"})
	})

	api := e.Group("/api")
	api.POST("/applications/check-status", apps.CheckStatus)
	api.GET("/applications/:id/document", apps.DownloadDocument)
	api.POST("/admin/login", admin.Login)

	protected := api.Group("", m.Auth)
	protected.GET("/applications", apps.List)
	protected.POST("/applications", apps.Create)
	protected.POST("/applications/with-document", apps.CreateWithDocument)
	protected.GET("/applications/:id", apps.Get)
	protected.PUT("/applications/:id", apps.Update)
	protected.PATCH("/applications/:id/status", apps.UpdateStatus)
	protected.POST("/applications/:id/document", apps.AttachDocument)
	protected.DELETE("/applications/:id", apps.Delete)
	protected.GET("/admin/profile", admin.Profile)
	protected.PUT("/admin/update", admin.Update)

	return e
}
