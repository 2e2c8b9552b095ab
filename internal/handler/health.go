package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"walletpulse/internal/models"
)

type HealthHandler struct {
	DB *gorm.DB
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check with queue and staging backlog depths
// @Tags health
// @Success 200 {object} map[string]any
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}

	// A ready instance with a growing backlog is draining too slowly, so the
	// depths ride along with the readiness verdict.
	var pendingJobs, stagedBacklog int64
	db := h.DB.WithContext(c.Request.Context())
	if err := db.Model(&models.QueueJob{}).
		Where("status = ?", models.JobPending).
		Count(&pendingJobs).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := db.Model(&models.StagedTrade{}).
		Where("status <> ?", models.StagedProcessed).
		Count(&stagedBacklog).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ready",
		"pending_jobs":   pendingJobs,
		"staged_backlog": stagedBacklog,
	})
}
