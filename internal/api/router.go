package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/closure"
	"site-attendance-backend/internal/engine"
	"site-attendance-backend/internal/mw"
	"site-attendance-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, checkIn *engine.CheckInEngine, checkOut *engine.CheckOutEngine, agg *closure.Aggregator, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, checkIn, checkOut, agg, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Access decisions.
		api.POST("/labourers/:labourer_id/checkin", handler.PostCheckIn)
		api.POST("/labourers/:labourer_id/checkout", handler.PostCheckOut)

		// Supervisor and security flows.
		api.POST("/checkins/:attempt_id/resolve", handler.PostResolveDenial)
		api.POST("/checkouts/:check_out_id/stages/:stage", handler.PostStage)

		// Project geofence management.
		api.PUT("/projects/:project_id/boundary", handler.PutBoundary)
		api.GET("/projects/:project_id/geofence", caching, handler.GetGeofence)

		// Audit timeline.
		api.GET("/labourers/:labourer_id/attendance", caching, handler.GetAttendanceHistory)

		// End-of-day reconciliation.
		api.POST("/closure/run", handler.PostClosureRun)

		// Supervisor push subscriptions.
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
