package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"storefront/backend/internal/domain"
)

// handleNotification acknowledges the processor webhook before doing any
// work. The processor retries deliveries that are not acknowledged quickly,
// so reconciliation runs afterwards on a context detached from the request.
// Both the legacy `topic`/`id` and the newer `type`/`data.id` query shapes
// are accepted.
func (a *API) handleNotification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := domain.Notification{
		Topic: firstNonEmpty(q.Get("topic"), q.Get("type")),
		ID:    firstNonEmpty(q.Get("id"), q.Get("data.id")),
	}
	w.WriteHeader(http.StatusOK)

	if n.Topic == "" || n.ID == "" {
		return
	}

	logger := a.logger.WithFields(log.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"topic":      n.Topic,
		"payment":    n.ID,
	})
	ctx := context.WithoutCancel(r.Context())
	a.webhooks.Add(1)
	go func() {
		defer a.webhooks.Done()
		ctx, cancel := context.WithTimeout(ctx, a.opts.WebhookTimeout)
		defer cancel()
		if err := a.service.HandleNotification(ctx, n); err != nil {
			logger.WithError(err).Error("payment notification failed, waiting for redelivery")
		}
	}()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
