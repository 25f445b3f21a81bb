package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/alhassanaraouf/the360insights-sub001/internal/services"
	"github.com/alhassanaraouf/the360insights-sub001/internal/storage"
)

// CompetitionHandler lists stored competitions and triggers feed syncs.
type CompetitionHandler struct {
	store  *storage.Store
	sync   *services.CompetitionSyncService
	logger *logrus.Logger
}

func NewCompetitionHandler(store *storage.Store, sync *services.CompetitionSyncService, logger *logrus.Logger) *CompetitionHandler {
	return &CompetitionHandler{
		store:  store,
		sync:   sync,
		logger: logger,
	}
}

// List returns all stored competitions ordered by start date
func (h *CompetitionHandler) List(c *gin.Context) {
	competitions, err := h.store.ListCompetitions(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list competitions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load competitions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"count":        len(competitions),
		"competitions": competitions,
	})
}

// Sync fetches the event feed and upserts competitions
func (h *CompetitionHandler) Sync(c *gin.Context) {
	synced, err := h.sync.SyncCompetitions(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Competition sync failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Competition sync failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   synced,
	})
}

// SyncParticipants fetches the registration list for one competition and
// upserts the athletes it names
func (h *CompetitionHandler) SyncParticipants(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid competition id", "details": err.Error()})
		return
	}

	comp, err := h.store.GetCompetition(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Competition not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load competition")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load competition"})
		return
	}

	synced, err := h.sync.SyncParticipants(c.Request.Context(), comp)
	if err != nil {
		h.logger.WithError(err).WithField("competition", comp.Name).Error("Participant sync failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Participant sync failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"count":       synced,
		"competition": comp.Name,
	})
}
