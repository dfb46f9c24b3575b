package api

import (
	"github.com/datallboy/newsflow/internal/api/controllers"
	"github.com/datallboy/newsflow/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	queueCtrl := &controllers.QueueController{App: app}
	serverCtrl := &controllers.ServerController{App: app}
	historyCtrl := &controllers.HistoryController{App: app}

	g := e.Group("/api")

	g.GET("/queue", queueCtrl.List)
	g.POST("/queue", queueCtrl.Add)
	g.GET("/queue/:id", queueCtrl.Get)
	g.POST("/queue/:id/pause", queueCtrl.Pause)
	g.POST("/queue/:id/resume", queueCtrl.Resume)
	g.DELETE("/queue/:id", queueCtrl.Remove)
	g.POST("/send", queueCtrl.Send)

	g.GET("/servers", serverCtrl.List)
	g.POST("/servers", serverCtrl.Add)
	g.GET("/servers/:id", serverCtrl.Get)
	g.DELETE("/servers/:id", serverCtrl.Remove)

	g.GET("/history", historyCtrl.List)
	g.GET("/history/:sid", historyCtrl.Get)
}

// NewServer builds the echo instance with every route registered.
func NewServer(app *app.Context) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, app)
	return e
}
