package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forestwatch/forest-monitor/internal/handler"
	"github.com/forestwatch/forest-monitor/internal/middleware"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/realtime"
)

// RegisterRoutes registers routes that require no authentication: the
// health check used by load balancers and the Prometheus scrape
// endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the authentication routes.  Unauthenticated
// operations live under /v1/auth; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// /refresh rotates the refresh token; /refresh-access only reissues
	// the access token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterForests registers forest CRUD under /v1/forests.  Reads are
// open to every authenticated role; mutations take ADMIN.
func RegisterForests(e *echo.Echo, f *handler.ForestHandler, jwtSecret string) {
	g := e.Group("/v1/forests")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.GET("", f.List)
	g.GET("/:id", f.Get)
	admin := middleware.RequireRole(model.RoleAdmin)
	g.POST("", f.Create, admin)
	g.PUT("/:id", f.Update, admin)
	g.DELETE("/:id", f.Delete, admin)
}

// RegisterTrees registers single-tree CRUD, per-tree measurements and
// image uploads under /v1/trees.  Tree mutations take ADMIN; measurement
// appends and uploads stay open to field users.
func RegisterTrees(e *echo.Echo, t *handler.TreeHandler, u *handler.UploadHandler, jwtSecret string) {
	g := e.Group("/v1/trees")
	g.Use(middleware.JWTAuth(jwtSecret))
	admin := middleware.RequireRole(model.RoleAdmin)
	g.GET("", t.List)
	g.GET("/:id", t.Get)
	g.POST("", t.Create, admin)
	g.PUT("/:id", t.Update, admin)
	g.DELETE("/:id", t.Delete, admin)
	g.POST("/:id/measurements", t.AddMeasurement)
	g.GET("/:id/measurements", t.ListMeasurements)
	g.POST("/:id/images", u.Upload)
	g.GET("/:id/images", u.ListImages)
	g.DELETE("/:id/images/:imageId", u.DeleteImage)
}

// RegisterBulk registers the transactional batch routes under /v1/bulk.
// The hard-delete variant of /trees/delete does its own ADMIN check so
// the route itself stays open to both roles.
func RegisterBulk(e *echo.Echo, b *handler.BulkHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	g := e.Group("/v1/bulk")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(extra...)
	g.POST("/trees/create", b.BulkCreate)
	g.PUT("/trees/update", b.BulkUpdate)
	g.DELETE("/trees/delete", b.BulkDelete)
	g.POST("/measurements/add", b.BulkAddMeasurements)
	g.GET("/operations/status", b.BulkOperationsStatus)
}

// RegisterDashboard registers the read-only aggregation routes under
// /v1/dashboard.  The cache middleware, when configured, is passed in
// via extra so only these routes are cached.
func RegisterDashboard(e *echo.Echo, d *handler.DashboardHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	g := e.Group("/v1/dashboard")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(extra...)
	g.GET("/overview", d.Overview)
	g.GET("/species", d.Species)
	g.GET("/health", d.Health)
	g.GET("/heights", d.Heights)
	g.GET("/forests", d.Forests)
}

// RegisterExports registers the CSV export routes under /v1/exports.
// Admin only.
func RegisterExports(e *echo.Echo, x *handler.ExportHandler, jwtSecret string) {
	g := e.Group("/v1/exports")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.GET("/trees.csv", x.Trees)
	g.GET("/measurements.csv", x.Measurements)
}

// RegisterAudit registers the audit trail routes under /v1/audit.
// Admin only.
func RegisterAudit(e *echo.Echo, a *handler.AuditHandler, jwtSecret string) {
	g := e.Group("/v1/audit")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.GET("", a.List)
	g.GET("/:id", a.Get)
}

// RegisterAdminUsers registers account management under /v1/admin/users.
func RegisterAdminUsers(e *echo.Echo, u *handler.UserAdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin/users")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.GET("", u.List)
	g.PUT("/:id/role", u.SetRole)
	g.DELETE("/:id", u.Deactivate)
}

// RegisterRealtime registers the push transports under /v1/realtime:
// a WebSocket endpoint and an SSE stream over the same hub.
func RegisterRealtime(e *echo.Echo, ws *realtime.WSHandler, sse *realtime.SSEHandler, jwtSecret string) {
	g := e.Group("/v1/realtime")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.GET("/ws", ws.Serve)
	g.GET("/events", sse.Serve)
}
