package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/altafino/order-mail-extractor/internal/email"
	"github.com/altafino/order-mail-extractor/internal/errorlog"
	"github.com/altafino/order-mail-extractor/internal/rules"
	"github.com/gin-gonic/gin"
)

const defaultPreviewLimit = 50

type unseenMessage struct {
	UID         uint32            `json:"uid"`
	MessageID   string            `json:"message_id"`
	Subject     string            `json:"subject"`
	From        string            `json:"from"`
	SenderEmail string            `json:"sender_email"`
	Date        time.Time         `json:"date"`
	Route       rules.Destination `json:"route"`
}

// previewUnseen handles GET /api/mailbox/unseen. It lists the headers of
// the newest unseen messages and where the current rules would send them,
// without fetching bodies or changing flags.
func (r *Router) previewUnseen(c *gin.Context) {
	limit := defaultPreviewLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	rs, err := r.deps.Store.GetRules(ctx)
	if err != nil {
		r.logger.Error("failed to load rules", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to load rules")
		return
	}
	idx := rules.NewIndex(rs)

	settings := r.deps.Settings.Get()
	criteria := email.CriteriaFromSettings(settings, r.logger)

	var out []unseenMessage
	err = r.deps.Mailbox.Open(ctx, settings, func(s email.Session) error {
		uids, err := s.Search(ctx, criteria)
		if err != nil {
			return err
		}
		sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
		if len(uids) > limit {
			uids = uids[:limit]
		}
		if len(uids) == 0 {
			return nil
		}

		envelopes, err := s.FetchEnvelopes(ctx, uids)
		if err != nil {
			return err
		}
		for _, e := range envelopes {
			out = append(out, unseenMessage{
				UID:         e.UID,
				MessageID:   e.MessageID,
				Subject:     e.Subject,
				From:        e.From,
				SenderEmail: e.SenderEmail,
				Date:        e.Date,
				Route:       rules.Route(e.SenderEmail, nil, idx),
			})
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("mailbox preview failed", "error", err)
		errorJSON(c, http.StatusBadGateway, err.Error())
		return
	}

	if out == nil {
		out = []unseenMessage{}
	}
	c.JSON(http.StatusOK, out)
}

// listErrors handles GET /api/errors?job_id=&stage=&sender=
func (r *Router) listErrors(c *gin.Context) {
	journal, err := errorlog.NewManager(r.deps.Settings.Get(), r.logger)
	if err != nil {
		r.logger.Error("failed to open error journal", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to open error journal")
		return
	}
	defer journal.Close()

	entries, err := journal.GetErrors(errorlog.Filter{
		JobID:  c.Query("job_id"),
		Stage:  errorlog.Stage(c.Query("stage")),
		Sender: c.Query("sender"),
	})
	if err != nil {
		r.logger.Error("failed to read error journal", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to read error journal")
		return
	}
	if entries == nil {
		entries = []errorlog.EmailError{}
	}
	c.JSON(http.StatusOK, entries)
}
