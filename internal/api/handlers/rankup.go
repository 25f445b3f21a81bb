package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alhassanaraouf/the360insights-sub001/internal/services"
)

// RankUpHandler exposes the rank-up requirement calculator.
type RankUpHandler struct {
	calculator *services.RankUpCalculator
	logger     *logrus.Logger
}

func NewRankUpHandler(calculator *services.RankUpCalculator, logger *logrus.Logger) *RankUpHandler {
	return &RankUpHandler{
		calculator: calculator,
		logger:     logger,
	}
}

// CalculateRequest is the JSON body for the calculate endpoint.
type CalculateRequest struct {
	AthleteID    string `json:"athlete_id" binding:"required"`
	TargetRank   int    `json:"target_rank" binding:"required,min=1"`
	RankingType  string `json:"ranking_type" binding:"required,oneof=world olympic"`
	Category     string `json:"category" binding:"required"`
	TargetDate   string `json:"target_date"`
	ForceRefresh bool   `json:"force_refresh"`
}

// Calculate computes what an athlete needs to reach a target rank
func (h *RankUpHandler) Calculate(c *gin.Context) {
	var request CalculateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid rank-up calculation request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	athleteID, err := uuid.Parse(request.AthleteID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid athlete_id", "details": err.Error()})
		return
	}

	var targetDate *time.Time
	if request.TargetDate != "" {
		parsed, err := time.Parse("2006-01-02", request.TargetDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target_date, expected YYYY-MM-DD", "details": err.Error()})
			return
		}
		targetDate = &parsed
	}

	h.logger.WithFields(logrus.Fields{
		"athlete_id":   athleteID,
		"target_rank":  request.TargetRank,
		"ranking_type": request.RankingType,
		"category":     request.Category,
	}).Info("Processing rank-up calculation request")

	result, err := h.calculator.Calculate(c.Request.Context(), &services.CalculateRequest{
		AthleteID:    athleteID,
		TargetRank:   request.TargetRank,
		RankingType:  request.RankingType,
		Category:     request.Category,
		TargetDate:   targetDate,
		ForceRefresh: request.ForceRefresh,
	})
	if err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case services.IsInsufficientData(err):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("Rank-up calculation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate rank-up requirements"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   result,
		"meta": gin.H{
			"cache_hit":     result.CacheHit,
			"calculated_at": result.CalculatedAt,
		},
	})
}
