package api

import (
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/groupbets-server/internal/models"
)

// CreateBet handles POST /bets
func (h *Handler) CreateBet(c *gin.Context) {
	var req models.CreateBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.service.CreateBet(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bet)
}

// ListBets handles GET /bets
func (h *Handler) ListBets(c *gin.Context) {
	var q models.ListBetsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	bets, err := h.service.ListBets(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bets)
}

// GetBet handles GET /bets/:id
func (h *Handler) GetBet(c *gin.Context) {
	bet, err := h.service.GetBet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bet)
}

// UpdateBet handles PATCH /bets/:id
func (h *Handler) UpdateBet(c *gin.Context) {
	var req models.UpdateBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.service.UpdateBet(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bet)
}

// DeleteBet handles DELETE /bets/:id
func (h *Handler) DeleteBet(c *gin.Context) {
	if err := h.service.DeleteBet(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ActivateBet handles POST /bets/:id/activate
func (h *Handler) ActivateBet(c *gin.Context) {
	bet, err := h.service.ActivateBet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bet)
}

// FinishBet handles POST /bets/:id/finish
func (h *Handler) FinishBet(c *gin.Context) {
	bet, err := h.service.FinishBet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bet)
}

// SetProgress handles POST /bets/:id/progress/:userId?progress=<float>
func (h *Handler) SetProgress(c *gin.Context) {
	var q models.SetProgressQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	// NaN and infinities cannot be encoded back as JSON
	if math.IsNaN(*q.Progress) || math.IsInf(*q.Progress, 0) {
		badRequest(c, errors.New("progress must be a finite number"))
		return
	}

	bet, err := h.service.SetProgress(c.Request.Context(), c.Param("id"), c.Param("userId"), *q.Progress)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bet)
}
