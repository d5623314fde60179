package api

import (
	"errors"
	"net/http"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/store"
	"github.com/gin-gonic/gin"
)

func (r *Router) listRules(c *gin.Context) {
	rules, err := r.deps.Store.GetRules(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to list rules", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to list rules")
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (r *Router) addRule(c *gin.Context) {
	var req struct {
		Type        models.RuleType `json:"type" binding:"required"`
		Pattern     string          `json:"pattern" binding:"required"`
		Description string          `json:"description"`
		Active      *bool           `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request")
		return
	}

	rule := &models.Rule{
		Type:        req.Type,
		Pattern:     req.Pattern,
		Description: req.Description,
		Active:      req.Active == nil || *req.Active,
	}
	if err := r.deps.Store.AddRule(c.Request.Context(), rule); err != nil {
		if errors.Is(err, store.ErrInvalidRule) {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("failed to add rule", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to add rule")
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (r *Router) deleteRule(c *gin.Context) {
	err := r.deps.Store.DeleteRule(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "rule not found")
	case err != nil:
		r.logger.Error("failed to delete rule", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to delete rule")
	default:
		c.Status(http.StatusNoContent)
	}
}
