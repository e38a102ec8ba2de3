package model

import "time"

// Tag is a label scoped to an owner and a location. Two tags with the same
// name but a different owner or location are distinct entities.
type Tag struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UserID     string    `json:"user_id"`
	LocationID string    `json:"location_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TagKey is the uniqueness key of a Tag. Empty UserID or LocationID mean the
// scope component was absent.
type TagKey struct {
	Name       string
	UserID     string
	LocationID string
}

// Key returns the uniqueness key of t.
func (t Tag) Key() TagKey {
	return TagKey{Name: t.Name, UserID: t.UserID, LocationID: t.LocationID}
}

// String renders the key for logs and lock maps.
func (k TagKey) String() string {
	return k.UserID + "/" + k.LocationID + "/" + k.Name
}
