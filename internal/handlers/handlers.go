package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"disaster-alerts-go/internal/aggregator"
	"disaster-alerts-go/internal/config"
	"disaster-alerts-go/internal/ingest"
	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/sources"
	"disaster-alerts-go/internal/store"
)

const defaultPushTimeout = 30 * time.Second

type Handler struct {
	Store      store.Store
	Bus        store.EventBus // nil when Redis is not configured
	Aggregator *aggregator.Aggregator
	Ingester   *ingest.Writer
	Push       *Pusher // nil disables web push
	Alerts     config.AlertsConfig

	// PushTimeout bounds one push fan-out.
	PushTimeout time.Duration

	jwtSecret []byte
}

func NewHandler(s store.Store, bus store.EventBus, agg *aggregator.Aggregator, ing *ingest.Writer, push *Pusher, cfg config.Config) *Handler {
	return &Handler{
		Store:      s,
		Bus:        bus,
		Aggregator: agg,
		Ingester:   ing,
		Push:       push,
		Alerts:     cfg.Alerts,

		PushTimeout: defaultPushTimeout,
		jwtSecret:   []byte(cfg.JWTSecret),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("Failed to encode response:", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// feedParams reads lat, lon and minMag, falling back to configured defaults.
func (h *Handler) feedParams(r *http.Request) sources.Params {
	q := r.URL.Query()
	p := sources.Params{
		Lat:          h.Alerts.DefaultLat,
		Lon:          h.Alerts.DefaultLon,
		MinMagnitude: h.Alerts.MinMagnitude,
	}
	if v := strings.TrimSpace(q.Get("lat")); v != "" {
		p.Lat = v
	}
	if v := strings.TrimSpace(q.Get("lon")); v != "" {
		p.Lon = v
	}
	if v := strings.TrimSpace(q.Get("minMag")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.MinMagnitude = f
		}
	}
	return p
}

// ExternalAlertsHandler serves the aggregated external feed.
func (h *Handler) ExternalAlertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res, err := h.Aggregator.Aggregate(r.Context(), h.feedParams(r))
	if err != nil {
		log.Println("Failed to aggregate alerts:", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// SaveExternalAlertsHandler persists the external feed, skipping alerts
// already stored.
func (h *Handler) SaveExternalAlertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	refresh := false
	switch strings.ToLower(r.URL.Query().Get("refresh")) {
	case "1", "true", "yes":
		refresh = true
	}

	res, err := h.Ingester.Ingest(r.Context(), h.feedParams(r), refresh)
	// alerts stored before a failure are still new to everyone else
	h.recordIngest(r.Context(), res)
	if err != nil {
		log.Println("Failed to ingest alerts:", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) recordIngest(ctx context.Context, res ingest.Result) {
	if res.InsertedCount == 0 {
		return
	}
	meta, _ := json.Marshal(map[string]any{"inserted": res.InsertedCount, "failed": len(res.Failed)})
	if err := h.Store.InsertAudit(context.WithoutCancel(ctx), 0, "ingest_external", "alert", 0, string(meta)); err != nil {
		log.Println("Failed to write audit log:", err)
	}
	h.announce(res.Inserted)
}

// ListAlertsHandler returns stored alerts, newest first. filter=external or
// filter=internal narrows by origin, q searches title and description, and
// source matches the upstream name.
func (h *Handler) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	q := store.AlertQuery{
		Text:   strings.TrimSpace(query.Get("q")),
		Source: strings.TrimSpace(query.Get("source")),
	}
	if f := query.Get("filter"); f == store.OriginExternal || f == store.OriginInternal {
		q.Origin = f
	}

	alerts, err := h.Store.SearchAlerts(r.Context(), q)
	if err != nil {
		log.Println("Search error:", err)
		writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	if alerts == nil {
		alerts = []models.StoredAlert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// SSEHandler streams newly stored alerts.
func (h *Handler) SSEHandler(w http.ResponseWriter, r *http.Request) {
	if h.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "Live alerts are not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	pubsub := h.Bus.Subscribe(r.Context())
	defer pubsub.Close()

	ch := pubsub.Channel()

	fmt.Fprintf(w, "data: %s\n\n", "connected")
	flusher.Flush()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// announce publishes new alerts to live listeners and push subscribers.
func (h *Handler) announce(alerts []models.StoredAlert) {
	if len(alerts) == 0 {
		return
	}
	ctx := context.Background()
	if h.Bus != nil {
		for _, a := range alerts {
			if err := h.Bus.PublishAlert(ctx, a); err != nil {
				log.Println("Failed to publish alert event:", err)
			}
		}
	}
	if h.Push != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.PushTimeout)
			defer cancel()
			h.Push.NotifyAlerts(ctx, alerts)
		}()
	}
}
