package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"disaster-alerts-go/internal/config"
	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/store"
)

// Pusher delivers web push notifications for new alerts.
type Pusher struct {
	store      store.PushStore
	publicKey  string
	privateKey string
	subscriber string
}

// NewPusher uses the configured VAPID keys, generating a pair when none are set.
func NewPusher(cfg config.PushConfig, s store.PushStore) (*Pusher, error) {
	p := &Pusher{
		store:      s,
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: cfg.Subscriber,
	}

	if p.publicKey == "" || p.privateKey == "" {
		log.Println("VAPID keys not found in environment. Generating new keys...")
		privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("generate VAPID keys: %w", err)
		}
		p.privateKey = privateKey
		p.publicKey = publicKey
		log.Printf("Generated VAPID Keys:\nVAPID_PRIVATE_KEY=%s\nVAPID_PUBLIC_KEY=%s\n(Add these to your .env file to persist them)", privateKey, publicKey)
	}

	return p, nil
}

// PublicKey is handed to browsers so they can subscribe.
func (p *Pusher) PublicKey() string { return p.publicKey }

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  string `json:"link,omitempty"`
}

func alertsPayload(alerts []models.StoredAlert) pushPayload {
	if len(alerts) == 1 {
		a := alerts[0]
		return pushPayload{Title: a.Title, Body: a.Description, Link: a.Link}
	}
	return pushPayload{
		Title: fmt.Sprintf("%d new alerts", len(alerts)),
		Body:  alerts[0].Title,
	}
}

// NotifyAlerts sends one notification summarising alerts to every subscriber.
func (p *Pusher) NotifyAlerts(ctx context.Context, alerts []models.StoredAlert) {
	if len(alerts) == 0 {
		return
	}
	message, err := json.Marshal(alertsPayload(alerts))
	if err != nil {
		log.Printf("Failed to encode push payload: %v", err)
		return
	}

	subs, err := p.store.GetPushSubscriptions(ctx)
	if err != nil {
		log.Printf("Failed to get subscriptions: %v", err)
		return
	}

	for _, sub := range subs {
		s := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, message, s, &webpush.Options{
			Subscriber:      p.subscriber,
			VAPIDPublicKey:  p.publicKey,
			VAPIDPrivateKey: p.privateKey,
			TTL:             30,
		})
		if err != nil {
			log.Printf("Failed to send push to %s: %v", sub.Endpoint, err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// VAPIDKeyHandler returns the public VAPID key.
func (h *Handler) VAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	if h.Push == nil {
		writeError(w, http.StatusServiceUnavailable, "Push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.Push.PublicKey()})
}

// SubscribePushHandler saves the caller's push subscription.
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	claims, _ := CurrentClaims(r)

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if err := h.Store.SavePushSubscription(r.Context(), claims.UserID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		log.Printf("Failed to save subscription: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
