// routes_train.go - Training-Handler
// Beinhaltet: TrainHandler fuer /api/train
// Trainiert synchron auf der mitgeschickten Zeitreihe, speichert den
// Checkpoint und registriert den Lauf in der Datenbank.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/types/model"
)

// defaultArchitecture wird verwendet, wenn die Anfrage keine andere
// Architektur benennt.
const defaultArchitecture = "transformer"

// TrainHandler verarbeitet /api/train Anfragen
func (s *Server) TrainHandler(c *gin.Context) {
	var req api.TrainRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name, err := model.ParseName(req.Model)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	series, err := req.Series.TimeSeries()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := s.modelPath(name.Model)

	// Ohne neue Konfiguration wird ein vorhandener Checkpoint
	// weitertrainiert, sonst frisch begonnen
	var f models.Forecaster
	if len(req.Config) == 0 {
		if _, statErr := os.Stat(path); statErr == nil {
			loaded, err := models.Load(path)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			f = loaded
			slog.Info("continuing training from checkpoint", "model", name.Model)
		}
	}
	if f == nil {
		fresh, err := models.New(defaultArchitecture, req.Config)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f = fresh
	}

	started := time.Now()
	stats, err := f.Train(c.Request.Context(), series)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	duration := time.Since(started)

	if err := f.Save(path); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Ein alter Cache-Eintrag zeigt auf den Stand vor dem Training
	s.loaded.evict(name.Model)

	if err := s.db.PutModel(name.Model, path, string(req.Config)); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	runID, err := s.db.RecordRun(name.Model, stats, started, duration)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.TrainResponse{
		Model:         name.Model,
		RunID:         runID,
		Epochs:        stats.Epochs,
		BestEpoch:     stats.BestEpoch,
		TrainLoss:     stats.TrainLoss,
		ValidLoss:     stats.ValidLoss,
		TotalDuration: duration,
	})
}
