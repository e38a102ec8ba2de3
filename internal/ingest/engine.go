// Package ingest reconciles lead exports into contacts, custom field values
// and tags. Records are processed sequentially in fixed-size chunks, and a
// failing record never aborts the import.
package ingest

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadsync/internal/config"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/registry"
	"github.com/sells-group/leadsync/internal/resilience"
)

// Store is the persistence the engine writes through.
type Store interface {
	registry.Finder
	UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error)
	UpsertCustomFieldValue(ctx context.Context, v *model.ContactCustomFieldValue) error
	GetOrCreateTag(ctx context.Context, key model.TagKey) (*model.Tag, error)
	AddContactTag(ctx context.Context, contactID, tagID string) error
	RecordFailure(ctx context.Context, dl *resilience.DeadLetter) error
}

// Config tunes an Engine.
type Config struct {
	// ChunkSize is the number of records per chunk. Default: 1000.
	ChunkSize int
	// ChunkTimeout bounds each chunk. Zero disables the deadline.
	ChunkTimeout time.Duration
	// RecordsPerSecond paces record processing. Zero disables pacing.
	RecordsPerSecond float64
	// DeadLetter records failed contact upserts in the store.
	DeadLetter bool
	// Retry applies to every store write.
	Retry resilience.RetryConfig
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkTimeout: 5 * time.Minute,
		DeadLetter:   true,
		Retry:        resilience.DefaultRetryConfig(),
	}
}

// FromImportConfig builds an engine Config from application settings.
func FromImportConfig(c config.ImportConfig) Config {
	return Config{
		ChunkSize:        c.ChunkSize,
		ChunkTimeout:     c.ChunkTimeout(),
		RecordsPerSecond: c.RecordsPerSecond,
		DeadLetter:       c.DeadLetter,
		Retry:            resilience.FromRetryConfig(c.StoreRetryAttempts, c.StoreRetryBackoffMs, c.StoreRetryMaxDelayMs),
	}
}

// Engine runs imports against a Store. It is safe for concurrent imports.
type Engine struct {
	store Store
	cfg   Config
	locks *scopeLocks
	in    *instruments
}

// New creates an Engine.
func New(st Store, cfg Config) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	return &Engine{
		store: st,
		cfg:   cfg,
		locks: newScopeLocks(),
		in:    newInstruments(),
	}
}

// importRun is the state shared by every record of one import.
type importRun struct {
	id       string
	userID   string
	registry registry.Registry
	log      *zap.Logger
}

// ImportFile reads the document at path, removes the file unless keep is
// set, and imports it.
func (e *Engine) ImportFile(ctx context.Context, userID, path string, keep bool) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	if !keep {
		if err := os.Remove(path); err != nil {
			zap.L().Warn("ingest: remove uploaded document", zap.String("path", path), zap.Error(err))
		}
	}
	return e.Import(ctx, userID, data)
}

// Import reconciles one lead document on behalf of userID. Document-level
// problems return ErrMalformedInput or ErrInvalidSchema before any write.
// Cancellation or a chunk deadline stops the import between records and
// returns the partial summary with the error; completed writes remain.
func (e *Engine) Import(ctx context.Context, userID string, data []byte) (*Summary, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	run := &importRun{
		id:       uuid.New().String(),
		userID:   userID,
		registry: registry.NewMemo(e.store),
	}
	run.log = zap.L().With(zap.String("import_id", run.id))

	total := len(doc.Records)
	chunks := (total + e.cfg.ChunkSize - 1) / e.cfg.ChunkSize
	summary := &Summary{ImportID: run.id, TotalRecords: total}

	ctx, span := e.in.tracer.Start(ctx, "ingest.import", trace.WithAttributes(
		attribute.String("import.id", run.id),
		attribute.Int("import.records", total),
		attribute.Int("import.chunks", chunks),
	))
	defer span.End()

	run.log.Info("ingest: import started",
		zap.Int("records", total),
		zap.Int("chunks", chunks),
		zap.Int("chunk_size", e.cfg.ChunkSize),
	)

	var limiter *rate.Limiter
	if e.cfg.RecordsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.RecordsPerSecond), 1)
	}

	for i := 0; i < chunks; i++ {
		lo := i * e.cfg.ChunkSize
		hi := min(lo+e.cfg.ChunkSize, total)
		summary.Chunks++

		if err := e.runChunk(ctx, run, limiter, i, doc.Records[lo:hi], lo, summary); err != nil {
			summary.Message = MessageInterrupted
			summary.finish(start)
			span.RecordError(err)
			span.SetStatus(codes.Error, "import interrupted")
			run.log.Warn("ingest: import interrupted",
				zap.Int("chunk", i+1),
				zap.Int("processed", summary.InsertedRecords+summary.Skipped+summary.Failed),
				zap.Error(err),
			)
			return summary, eris.Wrapf(err, "ingest: chunk %d of %d", i+1, chunks)
		}
	}

	summary.Message = MessageProcessed
	summary.finish(start)
	run.log.Info("ingest: import complete",
		zap.Int("total", summary.TotalRecords),
		zap.Int("inserted", summary.InsertedRecords),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("partial", summary.Partial),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// runChunk processes records in order under the chunk deadline. It returns
// only for cancellation, deadline or pacing errors.
func (e *Engine) runChunk(ctx context.Context, run *importRun, limiter *rate.Limiter, chunk int, records []json.RawMessage, offset int, summary *Summary) error {
	if e.cfg.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ChunkTimeout)
		defer cancel()
	}

	ctx, span := e.in.tracer.Start(ctx, "ingest.chunk", trace.WithAttributes(
		attribute.Int("chunk.index", chunk),
		attribute.Int("chunk.records", len(records)),
	))
	defer span.End()

	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		outcome := e.processRecord(ctx, run, offset+i, raw)
		summary.add(outcome)
		e.in.record(ctx, outcome)
	}
	return nil
}

// processRecord runs the per-record steps: normalize, upsert the contact,
// then write custom fields and tags. Each step's failure is contained.
func (e *Engine) processRecord(ctx context.Context, run *importRun, index int, raw json.RawMessage) RecordOutcome {
	out := RecordOutcome{Index: index}
	log := run.log.With(zap.Int("record", index))

	lead, err := normalizeRaw(raw)
	if err != nil {
		out.Status = StatusSkipped
		out.Reason = err.Error()
		log.Warn("ingest: skipping record", zap.String("reason", out.Reason))
		return out
	}
	out.ContactID = lead.Contact.ContactID
	log = log.With(zap.String("contact_id", out.ContactID))

	contact, err := e.upsertContact(ctx, &lead.Contact)
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		log.Error("ingest: contact upsert failed", zap.Error(err))
		e.deadLetter(ctx, run, index, raw, out.ContactID, err, "contact")
		return out
	}

	e.resolveCustomFields(ctx, run, log, contact, lead.CustomFields, &out)
	e.associateTags(ctx, run, log, contact, lead.Tags, &out)

	out.settle()
	log.Debug("ingest: record processed",
		zap.String("status", string(out.Status)),
		zap.Int("fields_written", out.FieldsWritten),
		zap.Int("tags", out.TagsAssociated),
	)
	return out
}

func normalizeRaw(raw json.RawMessage) (*Lead, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(rec)
}

// deadLetter persists a failed record. It runs detached from ctx so a
// record that failed on a deadline is still recorded.
func (e *Engine) deadLetter(ctx context.Context, run *importRun, index int, raw json.RawMessage, contactID string, cause error, step string) {
	if !e.cfg.DeadLetter {
		return
	}
	dl := &resilience.DeadLetter{
		ImportID:    run.id,
		RecordIndex: index,
		ContactID:   contactID,
		Record:      raw,
		Error:       cause.Error(),
		ErrorType:   resilience.ClassifyError(cause),
		FailedStep:  step,
	}
	if err := e.store.RecordFailure(context.WithoutCancel(ctx), dl); err != nil {
		run.log.Warn("ingest: record dead letter",
			zap.Int("record", index),
			zap.Error(err),
		)
	}
}

// retryConfig returns the engine retry policy with a logging hook for op.
func (e *Engine) retryConfig(op string, fields ...zap.Field) resilience.RetryConfig {
	cfg := e.cfg.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(op, fields...)
	}
	return cfg
}
