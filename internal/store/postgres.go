package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadsync/internal/db"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	pgUpsertContactSQL = func() string {
		cfg := contactUpsert
		cfg.Returning = []string{"id", "created_at"}
		return cfg.MustRowSQL(db.Dollar)
	}()
	pgInsertTagSQL        = tagInsert.MustRowSQL(db.Dollar)
	pgInsertContactTagSQL = contactTagInsert.MustRowSQL(db.Dollar)
	pgUpsertFieldValueSQL = fieldValueUpsert.MustRowSQL(db.Dollar)
)

const pgSelectContact = `SELECT id, contact_id, location_id, name, email, phone,
	address, city, state, postal_code, country, company,
	website, source, type, assigned_to, profile_image, tag_names,
	followers, additional_emails, attributions,
	dnd, dnd_email, dnd_sms, dnd_call,
	date_added, date_updated, date_of_birth,
	created_at, updated_at
	FROM contacts WHERE contact_id = $1`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	contact_id        TEXT NOT NULL UNIQUE,
	location_id       TEXT,
	name              TEXT,
	email             TEXT,
	phone             TEXT,
	address           TEXT,
	city              TEXT,
	state             TEXT,
	postal_code       TEXT,
	country           TEXT,
	company           TEXT,
	website           TEXT,
	source            TEXT,
	type              TEXT,
	assigned_to       TEXT,
	profile_image     TEXT,
	tag_names         TEXT,
	followers         TEXT,
	additional_emails TEXT,
	attributions      TEXT,
	dnd               BOOLEAN NOT NULL DEFAULT false,
	dnd_email         BOOLEAN,
	dnd_sms           BOOLEAN,
	dnd_call          BOOLEAN,
	date_added        TIMESTAMPTZ,
	date_updated      TIMESTAMPTZ,
	date_of_birth     TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_contacts_location ON contacts(location_id);

CREATE TABLE IF NOT EXISTS custom_fields (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cf_id       TEXT NOT NULL UNIQUE,
	cf_name     TEXT NOT NULL,
	data_type   TEXT NOT NULL,
	placeholder TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contact_custom_fields (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	contact_id      TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
	custom_field_id TEXT NOT NULL REFERENCES custom_fields(id) ON DELETE CASCADE,
	value           JSONB NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (contact_id, custom_field_id)
);

CREATE TABLE IF NOT EXISTS tags (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name        TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	location_id TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, user_id, location_id)
);

CREATE TABLE IF NOT EXISTS contact_tags (
	contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
	tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (contact_id, tag_id)
);

CREATE TABLE IF NOT EXISTS import_failures (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	import_id    TEXT NOT NULL,
	record_index INTEGER NOT NULL,
	contact_id   TEXT,
	record       JSONB NOT NULL,
	error        TEXT NOT NULL,
	error_type   TEXT NOT NULL DEFAULT 'permanent',
	failed_step  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_import_failures_import ON import_failures(import_id);
CREATE INDEX IF NOT EXISTS idx_import_failures_type ON import_failures(error_type);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	out := *c
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	err := s.pool.QueryRow(ctx, pgUpsertContactSQL, contactArgs(&out)...).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert contact %s", c.ContactID)
	}
	return &out, nil
}

func (s *PostgresStore) GetContactByExternalID(ctx context.Context, contactID string) (*model.Contact, error) {
	c, err := scanContact(s.pool.QueryRow(ctx, pgSelectContact, contactID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get contact %s", contactID)
	}
	return c, nil
}

func (s *PostgresStore) CountContacts(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM contacts`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count contacts")
}

func (s *PostgresStore) GetOrCreateTag(ctx context.Context, key model.TagKey) (*model.Tag, error) {
	tag, err := s.findTag(ctx, key)
	if err != nil || tag != nil {
		return tag, err
	}

	_, err = s.pool.Exec(ctx, pgInsertTagSQL,
		uuid.New().String(), key.Name, key.UserID, key.LocationID, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert tag %s", key)
	}

	// A concurrent writer may have won the insert; either way the row exists now.
	tag, err = s.findTag(ctx, key)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, eris.Errorf("postgres: tag %s missing after insert", key)
	}
	return tag, nil
}

func (s *PostgresStore) findTag(ctx context.Context, key model.TagKey) (*model.Tag, error) {
	var t model.Tag
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, user_id, location_id, created_at FROM tags
		 WHERE name = $1 AND user_id = $2 AND location_id = $3`,
		key.Name, key.UserID, key.LocationID,
	).Scan(&t.ID, &t.Name, &t.UserID, &t.LocationID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find tag %s", key)
	}
	return &t, nil
}

func (s *PostgresStore) AddContactTag(ctx context.Context, contactID, tagID string) error {
	_, err := s.pool.Exec(ctx, pgInsertContactTagSQL, contactID, tagID)
	return eris.Wrapf(err, "postgres: add tag %s to contact %s", tagID, contactID)
}

func (s *PostgresStore) ContactTagIDs(ctx context.Context, contactID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tag_id FROM contact_tags WHERE contact_id = $1 ORDER BY tag_id`, contactID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: contact tags")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact tag")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: contact tags iterate")
}

func (s *PostgresStore) ListTags(ctx context.Context, filter TagFilter) ([]model.Tag, error) {
	query := `SELECT id, name, user_id, location_id, created_at FROM tags WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.LocationID != "" {
		query += fmt.Sprintf(` AND location_id = $%d`, argIdx)
		args = append(args, filter.LocationID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY name, user_id, location_id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tags")
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UserID, &t.LocationID, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tag")
		}
		tags = append(tags, t)
	}
	return tags, eris.Wrap(rows.Err(), "postgres: list tags iterate")
}

func (s *PostgresStore) FindCustomFieldByExternalID(ctx context.Context, externalID string) (*model.CustomFieldDefinition, error) {
	var d model.CustomFieldDefinition
	err := s.pool.QueryRow(ctx,
		`SELECT id, cf_id, cf_name, data_type, placeholder, position, created_at, updated_at
		 FROM custom_fields WHERE cf_id = $1`,
		externalID,
	).Scan(&d.ID, &d.ExternalID, &d.Name, &d.DataType, &d.Placeholder, &d.Position, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find custom field %s", externalID)
	}
	return &d, nil
}

// SaveCustomFieldDefinitions bulk-upserts definitions keyed by external id.
func (s *PostgresStore) SaveCustomFieldDefinitions(ctx context.Context, defs []model.CustomFieldDefinition) (int64, error) {
	set := model.NewDefinitionSet(defs)
	now := time.Now().UTC()
	rows := make([][]any, 0, set.Len())
	for _, d := range set.Definitions {
		rows = append(rows, []any{
			uuid.New().String(), d.ExternalID, d.Name, d.DataType, d.Placeholder, d.Position, now, now,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, customFieldUpsert, rows)
	return n, eris.Wrap(err, "postgres: save custom fields")
}

func (s *PostgresStore) UpsertCustomFieldValue(ctx context.Context, v *model.ContactCustomFieldValue) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, pgUpsertFieldValueSQL,
		uuid.New().String(), v.ContactID, v.CustomFieldID, []byte(v.Value), v.UserID, now, now,
	)
	return eris.Wrapf(err, "postgres: upsert custom field value %s/%s", v.ContactID, v.CustomFieldID)
}

func (s *PostgresStore) ListCustomFieldValues(ctx context.Context, contactID string) ([]model.ContactCustomFieldValue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, contact_id, custom_field_id, value, user_id, created_at, updated_at
		 FROM contact_custom_fields WHERE contact_id = $1 ORDER BY custom_field_id`,
		contactID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list custom field values")
	}
	defer rows.Close()

	var values []model.ContactCustomFieldValue
	for rows.Next() {
		var v model.ContactCustomFieldValue
		var raw []byte
		if err := rows.Scan(&v.ID, &v.ContactID, &v.CustomFieldID, &raw, &v.UserID, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan custom field value")
		}
		v.Value = raw
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "postgres: list custom field values iterate")
}

func (s *PostgresStore) SearchTagNames(ctx context.Context, query string, limit int) ([]string, error) {
	return s.searchNames(ctx, `SELECT DISTINCT name FROM tags
		WHERE name ILIKE '%' || $1 || '%' ESCAPE '\' ORDER BY name LIMIT $2`, query, limit, "tag")
}

func (s *PostgresStore) SearchCustomFieldNames(ctx context.Context, query string, limit int) ([]string, error) {
	return s.searchNames(ctx, `SELECT DISTINCT cf_name FROM custom_fields
		WHERE cf_name ILIKE '%' || $1 || '%' ESCAPE '\' ORDER BY cf_name LIMIT $2`, query, limit, "custom field")
}

func (s *PostgresStore) searchNames(ctx context.Context, sql, query string, limit int, entity string) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql, db.EscapeLike(query), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: search %s names", entity)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s name", entity)
		}
		names = append(names, name)
	}
	return names, eris.Wrapf(rows.Err(), "postgres: search %s names iterate", entity)
}

func (s *PostgresStore) RecordFailure(ctx context.Context, dl *resilience.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_failures (id, import_id, record_index, contact_id, record, error, error_type, failed_step, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		dl.ID, dl.ImportID, dl.RecordIndex, nullIfEmpty(dl.ContactID), []byte(dl.Record),
		dl.Error, dl.ErrorType, dl.FailedStep, dl.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: record failure for import %s", dl.ImportID)
}

func (s *PostgresStore) ListFailures(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	query := `SELECT id, import_id, record_index, contact_id, record, error, error_type, failed_step, created_at
		FROM import_failures WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ImportID != "" {
		query += fmt.Sprintf(` AND import_id = $%d`, argIdx)
		args = append(args, filter.ImportID)
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, record_index LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var out []resilience.DeadLetter
	for rows.Next() {
		var dl resilience.DeadLetter
		var contactID *string
		var record []byte
		if err := rows.Scan(&dl.ID, &dl.ImportID, &dl.RecordIndex, &contactID, &record,
			&dl.Error, &dl.ErrorType, &dl.FailedStep, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		if contactID != nil {
			dl.ContactID = *contactID
		}
		dl.Record = record
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
