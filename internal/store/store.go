package store

import (
	"context"

	"github.com/sells-group/leadsync/internal/db"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// TagFilter specifies criteria for listing tags.
type TagFilter struct {
	UserID     string `json:"user_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for reconciled leads.
type Store interface {
	// Contacts
	UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error)
	GetContactByExternalID(ctx context.Context, contactID string) (*model.Contact, error)
	CountContacts(ctx context.Context) (int, error)

	// Tags
	GetOrCreateTag(ctx context.Context, key model.TagKey) (*model.Tag, error)
	AddContactTag(ctx context.Context, contactID, tagID string) error
	ContactTagIDs(ctx context.Context, contactID string) ([]string, error)
	ListTags(ctx context.Context, filter TagFilter) ([]model.Tag, error)

	// Custom fields
	FindCustomFieldByExternalID(ctx context.Context, externalID string) (*model.CustomFieldDefinition, error)
	SaveCustomFieldDefinitions(ctx context.Context, defs []model.CustomFieldDefinition) (int64, error)
	UpsertCustomFieldValue(ctx context.Context, v *model.ContactCustomFieldValue) error
	ListCustomFieldValues(ctx context.Context, contactID string) ([]model.ContactCustomFieldValue, error)

	// Suggestions
	SearchTagNames(ctx context.Context, query string, limit int) ([]string, error)
	SearchCustomFieldNames(ctx context.Context, query string, limit int) ([]string, error)

	// Dead letters
	RecordFailure(ctx context.Context, dl *resilience.DeadLetter) error
	ListFailures(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// contactColumns is the persisted column order of a Contact. contactArgs
// and scanContact follow the same order.
var contactColumns = []string{
	"id", "contact_id", "location_id", "name", "email", "phone",
	"address", "city", "state", "postal_code", "country", "company",
	"website", "source", "type", "assigned_to", "profile_image", "tag_names",
	"followers", "additional_emails", "attributions",
	"dnd", "dnd_email", "dnd_sms", "dnd_call",
	"date_added", "date_updated", "date_of_birth",
	"created_at", "updated_at",
}

// contactUpsert replaces every attribute of an existing contact except its
// internal id and creation time.
var contactUpsert = db.UpsertConfig{
	Table:        "contacts",
	Columns:      contactColumns,
	ConflictKeys: []string{"contact_id"},
	UpdateCols:   without(contactColumns, "id", "contact_id", "created_at"),
}

var customFieldUpsert = db.UpsertConfig{
	Table:        "custom_fields",
	Columns:      []string{"id", "cf_id", "cf_name", "data_type", "placeholder", "position", "created_at", "updated_at"},
	ConflictKeys: []string{"cf_id"},
	UpdateCols:   []string{"cf_name", "data_type", "placeholder", "position", "updated_at"},
}

var fieldValueUpsert = db.UpsertConfig{
	Table:        "contact_custom_fields",
	Columns:      []string{"id", "contact_id", "custom_field_id", "value", "user_id", "created_at", "updated_at"},
	ConflictKeys: []string{"contact_id", "custom_field_id"},
	UpdateCols:   []string{"value", "user_id", "updated_at"},
}

var tagInsert = db.UpsertConfig{
	Table:        "tags",
	Columns:      []string{"id", "name", "user_id", "location_id", "created_at"},
	ConflictKeys: []string{"name", "user_id", "location_id"},
	UpdateCols:   []string{},
}

var contactTagInsert = db.UpsertConfig{
	Table:        "contact_tags",
	Columns:      []string{"contact_id", "tag_id"},
	ConflictKeys: []string{"contact_id", "tag_id"},
}

func contactArgs(c *model.Contact) []any {
	return []any{
		c.ID, c.ContactID, c.LocationID, c.Name, c.Email, c.Phone,
		c.Address, c.City, c.State, c.PostalCode, c.Country, c.Company,
		c.Website, c.Source, c.Type, c.AssignedTo, c.ProfileImage, c.TagNames,
		c.Followers, c.AdditionalEmails, c.Attributions,
		c.DND, c.DNDEmail, c.DNDSMS, c.DNDCall,
		c.DateAdded, c.DateUpdated, c.DateOfBirth,
		c.CreatedAt, c.UpdatedAt,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.ContactID, &c.LocationID, &c.Name, &c.Email, &c.Phone,
		&c.Address, &c.City, &c.State, &c.PostalCode, &c.Country, &c.Company,
		&c.Website, &c.Source, &c.Type, &c.AssignedTo, &c.ProfileImage, &c.TagNames,
		&c.Followers, &c.AdditionalEmails, &c.Attributions,
		&c.DND, &c.DNDEmail, &c.DNDSMS, &c.DNDCall,
		&c.DateAdded, &c.DateUpdated, &c.DateOfBirth,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func without(cols []string, drop ...string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
