package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// upsertContact creates or fully replaces the contact keyed by its external
// id and returns the stored contact with its internal id.
func (e *Engine) upsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	cfg := e.retryConfig("upsert_contact", zap.String("contact_id", c.ContactID))
	stored, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.Contact, error) {
		return e.store.UpsertContact(ctx, c)
	})
	if err != nil {
		return nil, &StoreError{Op: "upsert contact", Err: err}
	}
	return stored, nil
}
