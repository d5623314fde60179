package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/rules"
	"github.com/altafino/order-mail-extractor/internal/store"
	"github.com/gin-gonic/gin"
)

// listEmails handles GET /api/emails?status=&classification=&limit=
func (r *Router) listEmails(c *gin.Context) {
	filter := store.EmailFilter{
		Status:         models.EmailStatus(c.Query("status")),
		Classification: models.Classification(c.Query("classification")),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errorJSON(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	emails, err := r.deps.Store.GetEmails(c.Request.Context(), filter)
	if err != nil {
		r.logger.Error("failed to list emails", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to list emails")
		return
	}
	c.JSON(http.StatusOK, emails)
}

func (r *Router) getEmail(c *gin.Context) {
	e, err := r.deps.Store.GetEmail(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "email not found")
	case err != nil:
		r.logger.Error("failed to load email", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to load email")
	default:
		c.JSON(http.StatusOK, e)
	}
}

// extractEmail handles POST /api/emails/:id/extract. The extraction result
// is stored on the email; a fallback result is still a 200.
func (r *Router) extractEmail(c *gin.Context) {
	req := struct {
		SaveFiles *bool `json:"save_files"`
	}{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid request")
			return
		}
	}
	saveFiles := req.SaveFiles == nil || *req.SaveFiles

	ctx := c.Request.Context()
	e, err := r.deps.Store.GetEmail(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "email not found")
		return
	}
	if err != nil {
		r.logger.Error("failed to load email", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to load email")
		return
	}

	blocked, err := r.blacklisted(c, e)
	if err != nil {
		r.logger.Error("failed to load rules", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to load rules")
		return
	}
	if blocked {
		if err := r.deps.Store.DeleteEmail(ctx, e.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			r.logger.Error("failed to delete blacklisted email", "email_id", e.ID, "error", err)
		}
		errorJSON(c, http.StatusConflict, "sender is blacklisted")
		return
	}

	res := r.deps.Extractor.Extract(ctx, e, r.deps.Settings.Get(), saveFiles)
	if err := r.deps.Store.UpdateEmail(ctx, e.ID, models.EmailPatch{Parsed: res.ParsedInfo()}); err != nil {
		r.logger.Error("failed to store extraction result", "email_id", e.ID, "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to store extraction result")
		return
	}

	c.JSON(http.StatusOK, res)
}

// blacklisted reports whether e must not be extracted, either by its stored
// classification or by the active rules
func (r *Router) blacklisted(c *gin.Context, e *models.Email) (bool, error) {
	if e.Classification == models.ClassBlacklist {
		return true, nil
	}
	rs, err := r.deps.Store.GetRules(c.Request.Context())
	if err != nil {
		return false, err
	}
	return rules.Route(e.SenderEmail, rs, nil) == rules.RouteSkip, nil
}

func (r *Router) deleteEmail(c *gin.Context) {
	err := r.deps.Store.DeleteEmail(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "email not found")
	case err != nil:
		r.logger.Error("failed to delete email", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to delete email")
	default:
		c.Status(http.StatusNoContent)
	}
}
