package main // Entry point package

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/database"
	"github.com/forestwatch/forest-monitor/internal/handler"
	"github.com/forestwatch/forest-monitor/internal/metrics"
	appmw "github.com/forestwatch/forest-monitor/internal/middleware"
	"github.com/forestwatch/forest-monitor/internal/queue"
	"github.com/forestwatch/forest-monitor/internal/realtime"
	"github.com/forestwatch/forest-monitor/internal/repository"
	"github.com/forestwatch/forest-monitor/internal/router"
)

// statsAdapter lets the SSE handler pull its initial snapshot from the
// dashboard stats repository.
type statsAdapter struct{ stats *repository.StatsRepo }

func (s statsAdapter) Snapshot(ctx context.Context) (interface{}, error) {
	return s.stats.GetOverview(ctx)
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: a nil client disables rate limiting and caching.
	rdb := config.NewRedisClient()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	forests := repository.NewForestRepo(db)
	trees := repository.NewTreeRepo(db)
	measures := repository.NewMeasurementRepo(db)
	images := repository.NewTreeImageRepo(db)
	audit := repository.NewAuditRepo(db)
	stats := repository.NewStatsRepo(db)

	hub := realtime.NewHub()

	auth := handler.NewAuthHandler(cfg, users, tokens)
	forestH := handler.NewForestHandler(cfg, forests, audit)
	treeH := handler.NewTreeHandler(cfg, trees, measures, images, audit, hub)
	bulkH := handler.NewBulkHandler(cfg, trees, measures, images, forests, audit, hub)
	uploadH := handler.NewUploadHandler(cfg, trees, images, audit)
	dashH := handler.NewDashboardHandler(cfg, stats)
	exportH := handler.NewExportHandler(cfg, trees, measures)
	auditH := handler.NewAuditHandler(cfg, audit)
	adminH := handler.NewUserAdminHandler(cfg, users, tokens, audit)

	origins := strings.Split(os.Getenv("WS_ALLOWED_ORIGINS"), ",")
	wsH := realtime.NewWSHandler(hub, origins)
	sseH := realtime.NewSSEHandler(hub, statsAdapter{stats: stats})

	e := echo.New()
	e.HideBanner = true
	e.Use(appmw.Metrics())
	if rdb != nil {
		e.Use(appmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	}

	router.RegisterRoutes(e)
	router.RegisterAuth(e, auth, cfg.JWTSecret)
	router.RegisterForests(e, forestH, cfg.JWTSecret)
	router.RegisterTrees(e, treeH, uploadH, cfg.JWTSecret)
	router.RegisterBulk(e, bulkH, cfg.JWTSecret)
	router.RegisterExports(e, exportH, cfg.JWTSecret)
	router.RegisterAudit(e, auditH, cfg.JWTSecret)
	router.RegisterAdminUsers(e, adminH, cfg.JWTSecret)
	router.RegisterRealtime(e, wsH, sseH, cfg.JWTSecret)

	// Dashboard routes sit behind the Redis response cache when available.
	var dashMW []echo.MiddlewareFunc
	if rdb != nil {
		dashMW = append(dashMW, appmw.NewRedisCache(config.LoadCacheConfig(), rdb))
	}
	router.RegisterDashboard(e, dashH, cfg.JWTSecret, dashMW...)

	// Consume bulk-operation events into the activity log in the
	// background; the consumer reconnects on its own.
	go func() {
		if err := queue.StartBulkOpsConsumer(); err != nil {
			log.Printf("queue consumer disabled: %v", err)
		}
	}()

	// Keep the subscriber gauge fresh without instrumenting the hub itself.
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for range t.C {
			metrics.SetRealtimeSubscribers(hub.SubscriberCount())
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
