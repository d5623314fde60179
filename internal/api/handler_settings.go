package api

import (
	"errors"
	"net/http"

	"github.com/altafino/order-mail-extractor/internal/config"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/gin-gonic/gin"
)

func (r *Router) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, r.deps.Settings.Get())
}

// putSettings replaces the whole settings document. Omitted fields fall
// back to their defaults, not to the current values.
func (r *Router) putSettings(c *gin.Context) {
	var next types.Settings
	if err := c.ShouldBindJSON(&next); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request")
		return
	}

	if err := r.deps.Settings.Replace(&next); err != nil {
		if errors.Is(err, config.ErrInvalidSettings) {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("failed to replace settings", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to save settings")
		return
	}

	c.JSON(http.StatusOK, r.deps.Settings.Get())
}
