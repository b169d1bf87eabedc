package handler

import (
	"context"
	"net/http"
	"time"

	"posledger/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health reports liveness of the two datastores plus the dead-letter backlog
// of the async queues. Degraded (503) when either store is unreachable; a
// non-empty DLQ is surfaced but does not fail the check.
func Health(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		components := gin.H{}
		healthy := true

		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			components["postgres"] = "unreachable"
			healthy = false
		} else {
			components["postgres"] = "up"
		}

		if err := rdb.Ping(ctx).Err(); err != nil {
			components["redis"] = "unreachable"
			healthy = false
		} else {
			components["redis"] = "up"
			dlq := gin.H{}
			for _, q := range []string{worker.QueueCashSync, worker.QueueReport} {
				if n, err := worker.DLQLength(ctx, rdb, q); err == nil {
					dlq[q] = n
				}
			}
			components["dlq"] = dlq
		}

		status, label := http.StatusOK, "ok"
		if !healthy {
			status, label = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(status, gin.H{"status": label, "components": components})
	}
}
