// routes_forecast.go - Prognose-Handler
// Beinhaltet: ForecastHandler fuer /api/forecast sowie das Laden der
// Modelle aus Cache oder Model-Verzeichnis.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/envconfig"
	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/models/forecast"
	"github.com/nehal119/merlion-testing/types/model"
)

// ForecastHandler verarbeitet /api/forecast Anfragen
func (s *Server) ForecastHandler(c *gin.Context) {
	var req api.ForecastRequest
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
	if req.Horizon <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "horizon must be positive"})
		return
	}

	keepAlive := envconfig.KeepAlive()
	if req.KeepAlive != nil {
		keepAlive = req.KeepAlive.Duration
	}

	f, err := s.forecaster(name.Model, keepAlive)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("model %q not found", name.Model)})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	fc, stderr, err := f.Forecast(c.Request.Context(), req.Horizon)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := api.ForecastResponse{
		Model:    name.Model,
		Forecast: api.FromTimeSeries(fc),
		Stderr:   api.FromTimeSeries(stderr),
	}

	if req.Level > 0 {
		lower, upper, err := forecast.ConfidenceBounds(fc, stderr, req.Level)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp.Lower = api.FromTimeSeries(lower)
		resp.Upper = api.FromTimeSeries(upper)
	}

	c.JSON(http.StatusOK, resp)
}

// forecaster holt das Modell aus dem Cache oder laedt den Checkpoint.
func (s *Server) forecaster(name string, keepAlive time.Duration) (models.Forecaster, error) {
	if f, ok := s.loaded.get(name); ok {
		return f, nil
	}

	path := s.modelPath(name)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	f, err := models.Load(path)
	if err != nil {
		return nil, err
	}

	s.loaded.put(name, f, keepAlive)
	slog.Debug("model loaded", "model", name, "keep_alive", keepAlive)
	return f, nil
}
