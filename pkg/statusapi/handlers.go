package statusapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asashepard/contexttune/pkg/resultstore"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	health, err := s.store.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, health)
}

// repoStateHandler handles GET /repos/{repo}/state, repo being a full
// "org/name" path captured via gin's wildcard routing.
func (s *Server) repoStateHandler(c *gin.Context) {
	repo := repoPathParam(c.Param("repo"))
	if repo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repo is required"})
		return
	}

	state, err := s.store.RepoState(c.Request.Context(), repo)
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no tuning state recorded for repo"})
			return
		}
		s.logger.Error("repo state query failed", "repo", repo, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// experimentSummaryHandler handles GET /experiments/{id}/summary.
func (s *Server) experimentSummaryHandler(c *gin.Context) {
	id := c.Param("id")
	summary, err := s.store.ExperimentSummary(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no results recorded for experiment"})
			return
		}
		s.logger.Error("experiment summary query failed", "experiment_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
