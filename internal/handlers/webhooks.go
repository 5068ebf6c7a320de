package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/product-importer/internal/models"
)

// RegisterWebhookRoutes registers subscription CRUD and the synchronous
// endpoint test.
func RegisterWebhookRoutes(r gin.IRoutes, st WebhookStore, tester WebhookTester) {
	r.GET("/api/webhooks", func(c *gin.Context) {
		hooks, err := st.ListWebhooks(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "storage error", err)
			return
		}
		c.JSON(http.StatusOK, hooks)
	})

	r.GET("/api/webhooks/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		w, err := st.GetWebhook(c.Request.Context(), id)
		if err != nil {
			storeError(c, "Webhook not found", err)
			return
		}
		c.JSON(http.StatusOK, w)
	})

	r.POST("/api/webhooks", func(c *gin.Context) {
		var req models.WebhookCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid JSON payload", err)
			return
		}
		w := models.WebhookSubscription{
			URL:       strings.TrimSpace(req.URL),
			EventType: strings.TrimSpace(req.EventType),
			Enabled:   req.Enabled == nil || *req.Enabled,
		}
		if msg := validateWebhook(w); msg != "" {
			respondError(c, http.StatusBadRequest, msg, nil)
			return
		}
		out, err := st.CreateWebhook(c.Request.Context(), w)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "storage error", err)
			return
		}
		c.JSON(http.StatusCreated, out)
	})

	r.PUT("/api/webhooks/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req models.WebhookUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid JSON payload", err)
			return
		}

		ctx := c.Request.Context()
		w, err := st.GetWebhook(ctx, id)
		if err != nil {
			storeError(c, "Webhook not found", err)
			return
		}
		if req.URL != nil {
			w.URL = strings.TrimSpace(*req.URL)
		}
		if req.EventType != nil {
			w.EventType = strings.TrimSpace(*req.EventType)
		}
		if req.Enabled != nil {
			w.Enabled = *req.Enabled
		}
		if msg := validateWebhook(w); msg != "" {
			respondError(c, http.StatusBadRequest, msg, nil)
			return
		}

		out, err := st.UpdateWebhook(ctx, w)
		if err != nil {
			storeError(c, "Webhook not found", err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	r.DELETE("/api/webhooks/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := st.DeleteWebhook(c.Request.Context(), id); err != nil {
			storeError(c, "Webhook not found", err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Blocks until the endpoint answers or the test timeout passes.
	r.POST("/api/webhooks/:id/test", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		w, err := st.GetWebhook(c.Request.Context(), id)
		if err != nil {
			storeError(c, "Webhook not found", err)
			return
		}
		c.JSON(http.StatusOK, tester.Test(c.Request.Context(), w.URL))
	})
}

func validateWebhook(w models.WebhookSubscription) string {
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "url must be an absolute http(s) URL"
	}
	if w.EventType == "" {
		return "event_type must not be empty"
	}
	return ""
}
