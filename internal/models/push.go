package models

import "time"

type PushSubscription struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"keysP256dh"` // Mapped from keys.p256dh
	Auth      string    `json:"keysAuth"`   // Mapped from keys.auth
	CreatedAt time.Time `json:"createdAt"`
}
