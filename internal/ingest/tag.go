package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// NormalizeTagName trims a tag name and puts it in Unicode NFC so visually
// identical names share one tag.
func NormalizeTagName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// associateTags resolves each tag name within the acting user's and the
// contact's location scope and adds it to the contact's tag set. The first
// store failure abandons the rest of the list; the contact and custom field
// writes stand.
func (e *Engine) associateTags(ctx context.Context, run *importRun, log *zap.Logger, contact *model.Contact, tags []json.RawMessage, out *RecordOutcome) {
	location := ""
	if contact.LocationID != nil {
		location = *contact.LocationID
	}

	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			log.Info("ingest: skipping non-string tag", zap.String("tag", string(raw)))
			continue
		}
		name = NormalizeTagName(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		key := model.TagKey{Name: name, UserID: run.userID, LocationID: location}
		if err := e.associateTag(ctx, contact, key); err != nil {
			out.TagsFailed = true
			log.Error("ingest: tag association failed", zap.String("tag", key.String()), zap.Error(err))
			return
		}
		out.TagsAssociated++
	}
}

func (e *Engine) associateTag(ctx context.Context, contact *model.Contact, key model.TagKey) error {
	cfg := e.retryConfig("get_or_create_tag", zap.String("tag", key.String()))

	unlock := e.locks.lock(key)
	tag, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.Tag, error) {
		return e.store.GetOrCreateTag(ctx, key)
	})
	unlock()
	if err != nil {
		return &StoreError{Op: "get or create tag", Err: err}
	}

	cfg = e.retryConfig("add_contact_tag", zap.String("tag", key.String()))
	if err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return e.store.AddContactTag(ctx, contact.ID, tag.ID)
	}); err != nil {
		return &StoreError{Op: "add contact tag", Err: err}
	}
	return nil
}
