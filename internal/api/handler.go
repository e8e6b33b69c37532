package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/groupbets-server/internal/metrics"
	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/rongwang/groupbets-server/internal/service"
)

// Handler handles API requests
type Handler struct {
	service service.Service
}

// NewHandler creates a new Handler
func NewHandler(service service.Service) *Handler {
	return &Handler{service: service}
}

// SetupRoutes registers every endpoint on router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/ping", h.Ping)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	users := router.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUser)
		users.PATCH("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
		users.POST("/:id/detach", h.DetachUser)
	}

	groups := router.Group("/groups")
	{
		groups.POST("", h.CreateGroup)
		groups.GET("", h.ListGroups)
		groups.GET("/:id", h.GetGroup)
		groups.PATCH("/:id", h.UpdateGroup)
		groups.DELETE("/:id", h.DeleteGroup)
		groups.POST("/:id/join/:userId", h.JoinGroup)
		groups.POST("/:id/leave/:userId", h.LeaveGroup)
		groups.POST("/:id/detach", h.DetachGroup)
	}

	bets := router.Group("/bets")
	{
		bets.POST("", h.CreateBet)
		bets.GET("", h.ListBets)
		bets.GET("/:id", h.GetBet)
		bets.PATCH("/:id", h.UpdateBet)
		bets.DELETE("/:id", h.DeleteBet)
		bets.POST("/:id/activate", h.ActivateBet)
		bets.POST("/:id/finish", h.FinishBet)
		bets.POST("/:id/progress/:userId", h.SetProgress)
	}
}

// Ping reports process liveness without touching storage
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Health reports whether storage answers
func (h *Handler) Health(c *gin.Context) {
	if err := h.service.Health(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}
