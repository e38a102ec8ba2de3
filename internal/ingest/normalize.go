package ingest

import (
	"encoding/json"
	"strings"

	"github.com/sells-group/leadsync/internal/model"
)

// Lead is a normalized record: the contact attributes plus the raw lists the
// custom field and tag steps consume.
type Lead struct {
	Contact      model.Contact
	CustomFields []json.RawMessage
	Tags         []json.RawMessage
}

// Normalize maps a raw record onto contact attributes. It performs no I/O.
// A blank email or missing contact id yields a SkipError.
func Normalize(rec RawRecord) (*Lead, error) {
	email := rec.Text("email")
	if email == nil || strings.TrimSpace(*email) == "" {
		return nil, skipf("email is missing or blank")
	}
	normalized := strings.ToLower(strings.TrimSpace(*email))

	contactID := rec.String("id")
	if contactID == nil || strings.TrimSpace(*contactID) == "" {
		return nil, skipf("contact id is missing")
	}

	c := model.Contact{
		ContactID:    strings.TrimSpace(*contactID),
		LocationID:   rec.String("locationId"),
		Name:         joinName(rec.String("firstName"), rec.String("lastName")),
		Email:        &normalized,
		Phone:        rec.String("phone"),
		Address:      rec.String("address_1"),
		City:         rec.String("city"),
		State:        rec.String("state"),
		PostalCode:   rec.String("postalCode"),
		Country:      rec.String("country"),
		Company:      rec.String("companyName"),
		Website:      rec.String("website"),
		Source:       rec.String("source"),
		Type:         rec.String("type"),
		AssignedTo:   rec.String("assignedTo"),
		ProfileImage: rec.String("profilePhoto"),
		DND:          rec.Bool("dnd"),
		DateAdded:    rec.Time("dateAdded"),
		DateUpdated:  rec.Time("dateUpdated"),
		DateOfBirth:  rec.Time("dateOfBirth"),
	}

	tags := rec.Array("tags")
	c.TagNames = joinTagNames(tags)
	c.Followers = serializeList(rec.Array("followers"))
	c.AdditionalEmails = serializeList(rec.Array("additionalEmails"))
	c.Attributions = serializeList(rec.Array("attributions"))

	if dnd := rec.Object("dndSettings"); dnd != nil {
		c.DNDEmail = channelDND(dnd, "email")
		c.DNDSMS = channelDND(dnd, "sms")
		c.DNDCall = channelDND(dnd, "call")
	}

	return &Lead{
		Contact:      c,
		CustomFields: rec.Array("customFields"),
		Tags:         tags,
	}, nil
}

// joinName joins the non-blank name parts with a single space. Both parts
// absent leaves the name unset.
func joinName(first, last *string) *string {
	var parts []string
	for _, p := range []*string{first, last} {
		if p == nil {
			continue
		}
		if s := strings.TrimSpace(*p); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	name := strings.Join(parts, " ")
	return &name
}

// joinTagNames keeps the delivered tag list as a comma-joined string.
func joinTagNames(tags []json.RawMessage) *string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if s, ok := scalarText(t); ok {
			names = append(names, s)
		}
	}
	joined := strings.Join(names, ",")
	if joined == "" {
		return nil
	}
	return &joined
}

func serializeList(items []json.RawMessage) *string {
	if len(items) == 0 {
		return nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	s := compactJSON(b)
	return &s
}

// channelDND reads a per-channel override given either as a bool or as an
// object carrying a status of "active" or "inactive".
func channelDND(settings RawRecord, channel string) *bool {
	v := settings.Raw(channel)
	if v == nil {
		return nil
	}

	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return &b
	}

	var obj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(obj.Status)) {
	case "active":
		b = true
	case "inactive":
		b = false
	default:
		return nil
	}
	return &b
}
