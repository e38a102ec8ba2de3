package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// customFieldEntry is one element of a record's customFields list.
type customFieldEntry struct {
	ID   string
	Type string
	raw  map[string]json.RawMessage
}

func decodeEntry(raw json.RawMessage) (*customFieldEntry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, skipf("custom field entry is not an object")
	}
	rec := RawRecord(fields)
	entry := &customFieldEntry{raw: fields}
	if id := rec.String("id"); id != nil {
		entry.ID = strings.TrimSpace(*id)
	}
	if typ := rec.String("type"); typ != nil {
		entry.Type = strings.TrimSpace(*typ)
	}
	if entry.ID == "" {
		return nil, skipf("custom field entry has no id")
	}
	if entry.Type == "" {
		return nil, skipf("custom field %s has no type", entry.ID)
	}
	return entry, nil
}

// value extracts the entry's value through the accessor for its type tag.
func (c *customFieldEntry) value() (FieldValue, error) {
	accessor := AccessorName(c.Type)
	raw, ok := c.raw[accessor]
	if !ok {
		return nil, skipf("custom field %s has no %s", c.ID, accessor)
	}
	if isNull(raw) {
		return nil, skipf("custom field %s has a null %s", c.ID, accessor)
	}
	v, err := DecodeFieldValue(c.Type, raw)
	if err != nil {
		return nil, skipf("custom field %s: %v", c.ID, err)
	}
	return v, nil
}

// resolveCustomFields writes one value per resolvable entry. Entries are
// independent: a skip or failure on one does not affect the others.
func (e *Engine) resolveCustomFields(ctx context.Context, run *importRun, log *zap.Logger, contact *model.Contact, entries []json.RawMessage, out *RecordOutcome) {
	for i, raw := range entries {
		err := e.resolveCustomField(ctx, run, contact, raw)
		switch {
		case err == nil:
			out.FieldsWritten++
		case IsSkip(err):
			out.FieldsSkipped++
			log.Info("ingest: skipping custom field", zap.Int("entry", i), zap.String("reason", err.Error()))
		default:
			out.FieldsFailed++
			log.Error("ingest: custom field failed", zap.Int("entry", i), zap.Error(err))
		}
	}
}

func (e *Engine) resolveCustomField(ctx context.Context, run *importRun, contact *model.Contact, raw json.RawMessage) error {
	entry, err := decodeEntry(raw)
	if err != nil {
		return err
	}
	v, err := entry.value()
	if err != nil {
		return err
	}

	def, err := run.registry.Lookup(ctx, entry.ID)
	if err != nil {
		return &StoreError{Op: "lookup custom field", Err: err}
	}
	if def == nil {
		return skipf("custom field %s is not registered", entry.ID)
	}

	row := &model.ContactCustomFieldValue{
		ContactID:     contact.ID,
		CustomFieldID: def.ID,
		Value:         v.JSON(),
		UserID:        run.userID,
	}
	cfg := e.retryConfig("upsert_custom_field_value",
		zap.String("contact_id", contact.ContactID),
		zap.String("custom_field", entry.ID),
	)
	if err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return e.store.UpsertCustomFieldValue(ctx, row)
	}); err != nil {
		return &StoreError{Op: "upsert custom field value", Err: err}
	}
	return nil
}
