package domain

import "time"

// Session represents an OAuth session. Offline sessions carry the durable
// shop-scoped access token used for background Admin API calls; online
// sessions expire with the user.
type Session struct {
	ID          string    `json:"id"`
	Shop        string    `json:"shop"`
	State       string    `json:"state"`
	IsOnline    bool      `json:"is_online"`
	Scopes      []string  `json:"scopes"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// OfflineSessionID returns the canonical session ID under which a shop's
// offline token is stored.
func OfflineSessionID(shop string) string {
	return "offline_" + shop
}
