package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/benchyard/internal/models"
	"github.com/zulandar/benchyard/internal/probe"
	"github.com/zulandar/benchyard/internal/scenario"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

// PowerHistory returns the latest power events for board, newest first.
func PowerHistory(db *gorm.DB, board string, limit int) ([]models.PowerEvent, error) {
	var events []models.PowerEvent
	err := db.Where("board = ?", board).Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return defaultHistoryLimit
	}
	return n
}

func (h *handlers) requireDB(c *gin.Context) bool {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
		return false
	}
	return true
}

func (h *handlers) powerHistory(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	events, err := PowerHistory(h.db.WithContext(c.Request.Context()), h.agent.Board, limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) scenarioHistory(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	store := &scenario.Store{DB: h.db, Board: h.agent.Board}
	runs, err := store.Recent(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *handlers) probes(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}
	results, err := probe.Latest(c.Request.Context(), h.db, h.agent.Board)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"probes": results})
}
