package model

import "time"

// Contact is the canonical person record reconciled from a lead export.
// ContactID is the external identifier assigned by the source system and is
// the natural key: at most one Contact exists per ContactID.
//
// Pointer fields are nil when the source did not supply a value; they are
// persisted as NULL rather than omitted.
type Contact struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`

	LocationID   *string `json:"location_id"`
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	PostalCode   *string `json:"postal_code"`
	Country      *string `json:"country"`
	Company      *string `json:"company"`
	Website      *string `json:"website"`
	Source       *string `json:"source"`
	Type         *string `json:"type"`
	AssignedTo   *string `json:"assigned_to"`
	ProfileImage *string `json:"profile_image"`

	// TagNames is the comma-joined tag list as delivered. Resolved tag
	// references live in the contact_tags association.
	TagNames *string `json:"tag_names"`

	// Serialized JSON collections.
	Followers        *string `json:"followers"`
	AdditionalEmails *string `json:"additional_emails"`
	Attributions     *string `json:"attributions"`

	DND      bool  `json:"dnd"`
	DNDEmail *bool `json:"dnd_settings_email"`
	DNDSMS   *bool `json:"dnd_settings_sms"`
	DNDCall  *bool `json:"dnd_settings_call"`

	DateAdded   *time.Time `json:"date_added"`
	DateUpdated *time.Time `json:"date_updated"`
	DateOfBirth *time.Time `json:"date_of_birth"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
