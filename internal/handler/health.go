package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"campus_live/internal/gateway"
)

type HealthHandler struct {
	db     *pgxpool.Pool
	rdb    *redis.Client
	broker gateway.Broker
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, broker gateway.Broker) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, broker: broker}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "campus-live",
	})
}

// Ready проверяет зависимости; деградация Redis не роняет readiness
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "ok"
	checks := gin.H{}

	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = "down"
		status = http.StatusServiceUnavailable
		overall = "unavailable"
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = "degraded"
	} else {
		checks["redis"] = "ok"
	}

	checks["broker"] = h.broker.Status()

	c.JSON(status, gin.H{
		"status": overall,
		"checks": checks,
	})
}
