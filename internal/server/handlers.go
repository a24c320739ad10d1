package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/nlquery"
	"erp-nlquery/internal/store"
)

const (
	serviceName = "erp-nlquery"
	pingTimeout = 2 * time.Second
)

func (s *Server) query(c *gin.Context) {
	var req nlquery.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidRequestError(err.Error()))
		return
	}

	principal, _ := principalFrom(c)
	resp, err := s.deps.Service.Ask(c.Request.Context(), principal, req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) intents(c *gin.Context) {
	principal, _ := principalFrom(c)
	c.JSON(http.StatusOK, s.deps.Service.Intents(principal))
}

// schema returns every allowed table, or one table when ?table= is given.
func (s *Server) schema(c *gin.Context) {
	if s.deps.Schema == nil {
		abortWithError(c, apperrors.NewInternalError(errors.New("schema inspection not configured")))
		return
	}

	if table := c.Query("table"); table != "" {
		columns, err := s.deps.Schema.TableSchema(c.Request.Context(), table)
		if err != nil {
			if errors.Is(err, store.ErrTableNotAllowed) {
				abortWithError(c, apperrors.NewTableNotAllowedError(table))
				return
			}
			abortWithError(c, apperrors.NewDatabaseConnectionFailedError(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"table": table, "columns": columns})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed_tables": s.deps.Schema.AllowedTables(),
		"schemas":        s.deps.Schema.AllSchemas(c.Request.Context()),
	})
}

func (s *Server) databaseUp(ctx context.Context) bool {
	if s.deps.Database == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.deps.Database.Ping(ctx); err != nil {
		s.logger.Warn("database ping failed", map[string]interface{}{"error": err})
		return false
	}
	return true
}

func (s *Server) health(c *gin.Context) {
	dbUp := s.databaseUp(c.Request.Context())
	status := "healthy"
	if !dbUp {
		status = "unhealthy"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"service":   serviceName,
		"version":   s.deps.App.Version,
		"database":  dbUp,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) ready(c *gin.Context) {
	if !s.databaseUp(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
