// routes_models.go - Model CRUD Handler
// Beinhaltet: ListHandler, ShowHandler, DeleteHandler
// Das Model-Verzeichnis ist die Quelle der Wahrheit, die Datenbank
// traegt nur Registrierung und Laufhistorie.
package server

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nehal119/merlion-testing/api"
	"github.com/nehal119/merlion-testing/fs/mcf"
	"github.com/nehal119/merlion-testing/models"
	"github.com/nehal119/merlion-testing/store"
	"github.com/nehal119/merlion-testing/types/model"
)

// ListHandler verarbeitet /api/models Anfragen
func (s *Server) ListHandler(c *gin.Context) {
	matches, err := filepath.Glob(filepath.Join(s.modelsDir, "*.mcf"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	infos := []api.ModelInfo{}
	for _, path := range matches {
		fi, err := os.Stat(path)
		if err != nil {
			slog.Warn("bad checkpoint path", "path", path, "error", err)
			continue
		}

		f, err := mcf.Stat(path)
		if err != nil {
			slog.Warn("bad checkpoint header", "path", path, "error", err)
			continue
		}

		infos = append(infos, api.ModelInfo{
			Name:         strings.TrimSuffix(filepath.Base(path), ".mcf"),
			Architecture: f.KV.String(models.KeyArchitecture),
			Size:         fi.Size(),
			CreatedAt:    fi.ModTime(),
		})
	}

	slices.SortStableFunc(infos, func(i, j api.ModelInfo) int {
		return cmp.Compare(j.CreatedAt.Unix(), i.CreatedAt.Unix())
	})

	c.JSON(http.StatusOK, api.ListResponse{Models: infos})
}

// ShowHandler verarbeitet /api/show Anfragen
func (s *Server) ShowHandler(c *gin.Context) {
	var req api.ShowRequest
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

	path := s.modelPath(name.Model)
	f, err := mcf.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("model %q not found", name.Model)})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := api.ShowResponse{
		Name:         name.Model,
		Architecture: f.KV.String(models.KeyArchitecture),
		Tensors:      len(f.Tensors),
	}

	if cfg := f.KV.String(models.KeyConfig); cfg != "" {
		resp.Config = json.RawMessage(cfg)
	}
	if names := f.KV.String(models.KeyVariables); names != "" {
		if err := json.Unmarshal([]byte(names), &resp.Variables); err != nil {
			slog.Warn("bad checkpoint variables", "model", name.Model, "error", err)
		}
	}

	// Zustandstensoren zaehlen nicht zu den Gewichten
	for _, t := range f.Tensors {
		if strings.HasPrefix(t.Name, models.TensorStatePrefix) {
			resp.Trained = true
			continue
		}
		resp.Parameters += int64(t.Elems())
	}

	if fi, err := os.Stat(path); err == nil {
		resp.CreatedAt = fi.ModTime()
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteHandler verarbeitet DELETE /api/models/:model Anfragen
func (s *Server) DeleteHandler(c *gin.Context) {
	name, err := model.ParseName(c.Param("model"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := os.Remove(s.modelPath(name.Model)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("model %q not found", name.Model)})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.loaded.evict(name.Model)

	// Laufhistorie bleibt erhalten, nur der Registry-Eintrag faellt weg
	if err := s.db.DeleteModel(name.Model); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}
