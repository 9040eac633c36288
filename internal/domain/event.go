package domain

import "time"

type EventType string

const (
	EventUserLoggedIn    EventType = "user.logged_in"
	EventUserLoggedOut   EventType = "user.logged_out"
	EventCartUpdated     EventType = "cart.updated"
	EventFavoriteToggled EventType = "favorite.toggled"
)

// ActivityEvent is a storefront action published for analytics.
type ActivityEvent struct {
	Type       EventType      `json:"type"`
	Actor      string         `json:"actor"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}
