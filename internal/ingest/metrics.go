package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/sells-group/leadsync/internal/ingest"

// instruments records import activity on the global OTel providers, which
// are no-ops unless telemetry is enabled.
type instruments struct {
	tracer trace.Tracer

	records  metric.Int64Counter
	upserted metric.Int64Counter
	skipped  metric.Int64Counter
	failed   metric.Int64Counter
	fields   metric.Int64Counter
	tags     metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	in.records = counter(meter, "leadsync.records", "Lead records seen")
	in.upserted = counter(meter, "leadsync.contacts.upserted", "Contacts created or updated")
	in.skipped = counter(meter, "leadsync.records.skipped", "Records skipped during normalization")
	in.failed = counter(meter, "leadsync.records.failed", "Records whose contact upsert failed")
	in.fields = counter(meter, "leadsync.custom_fields.written", "Custom field values written")
	in.tags = counter(meter, "leadsync.tags.associated", "Tag associations written")
	return in
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("1"))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func (in *instruments) record(ctx context.Context, o RecordOutcome) {
	attrs := metric.WithAttributes(attribute.String("status", string(o.Status)))
	in.records.Add(ctx, 1, attrs)
	switch o.Status {
	case StatusSucceeded, StatusPartial:
		in.upserted.Add(ctx, 1)
	case StatusSkipped:
		in.skipped.Add(ctx, 1)
	case StatusFailed:
		in.failed.Add(ctx, 1)
	}
	if o.FieldsWritten > 0 {
		in.fields.Add(ctx, int64(o.FieldsWritten))
	}
	if o.TagsAssociated > 0 {
		in.tags.Add(ctx, int64(o.TagsAssociated))
	}
}
