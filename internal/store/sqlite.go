package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadsync/internal/db"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

var (
	sqliteUpsertContactSQL    = contactUpsert.MustRowSQL(db.Question)
	sqliteInsertTagSQL        = tagInsert.MustRowSQL(db.Question)
	sqliteInsertContactTagSQL = contactTagInsert.MustRowSQL(db.Question)
	sqliteUpsertFieldSQL      = customFieldUpsert.MustRowSQL(db.Question)
	sqliteUpsertFieldValueSQL = fieldValueUpsert.MustRowSQL(db.Question)
)

const sqliteSelectContact = `SELECT id, contact_id, location_id, name, email, phone,
	address, city, state, postal_code, country, company,
	website, source, type, assigned_to, profile_image, tag_names,
	followers, additional_emails, attributions,
	dnd, dnd_email, dnd_sms, dnd_call,
	date_added, date_updated, date_of_birth,
	created_at, updated_at
	FROM contacts WHERE contact_id = ?`

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id                TEXT PRIMARY KEY,
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
	dnd               BOOLEAN NOT NULL DEFAULT 0,
	dnd_email         BOOLEAN,
	dnd_sms           BOOLEAN,
	dnd_call          BOOLEAN,
	date_added        DATETIME,
	date_updated      DATETIME,
	date_of_birth     DATETIME,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_contacts_location ON contacts(location_id);

CREATE TABLE IF NOT EXISTS custom_fields (
	id          TEXT PRIMARY KEY,
	cf_id       TEXT NOT NULL UNIQUE,
	cf_name     TEXT NOT NULL,
	data_type   TEXT NOT NULL,
	placeholder TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contact_custom_fields (
	id              TEXT PRIMARY KEY,
	contact_id      TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
	custom_field_id TEXT NOT NULL REFERENCES custom_fields(id) ON DELETE CASCADE,
	value           TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (contact_id, custom_field_id)
);

CREATE TABLE IF NOT EXISTS tags (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	location_id TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, user_id, location_id)
);

CREATE TABLE IF NOT EXISTS contact_tags (
	contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
	tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (contact_id, tag_id)
);

CREATE TABLE IF NOT EXISTS import_failures (
	id           TEXT PRIMARY KEY,
	import_id    TEXT NOT NULL,
	record_index INTEGER NOT NULL,
	contact_id   TEXT,
	record       TEXT NOT NULL,
	error        TEXT NOT NULL,
	error_type   TEXT NOT NULL DEFAULT 'permanent',
	failed_step  TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_import_failures_import ON import_failures(import_id);
CREATE INDEX IF NOT EXISTS idx_import_failures_type ON import_failures(error_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	out := *c
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	if _, err := s.db.ExecContext(ctx, sqliteUpsertContactSQL, sqliteArgs(contactArgs(&out))...); err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert contact %s", c.ContactID)
	}

	// The conflict path keeps the stored id and creation time.
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM contacts WHERE contact_id = ?`, out.ContactID,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: reload contact %s", c.ContactID)
	}
	return &out, nil
}

func (s *SQLiteStore) GetContactByExternalID(ctx context.Context, contactID string) (*model.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx, sqliteSelectContact, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %s", contactID)
	}
	return c, nil
}

func (s *SQLiteStore) CountContacts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM contacts`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count contacts")
}

func (s *SQLiteStore) GetOrCreateTag(ctx context.Context, key model.TagKey) (*model.Tag, error) {
	tag, err := s.findTag(ctx, key)
	if err != nil || tag != nil {
		return tag, err
	}

	_, err = s.db.ExecContext(ctx, sqliteInsertTagSQL,
		uuid.New().String(), key.Name, key.UserID, key.LocationID, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert tag %s", key)
	}

	tag, err = s.findTag(ctx, key)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, eris.Errorf("sqlite: tag %s missing after insert", key)
	}
	return tag, nil
}

func (s *SQLiteStore) findTag(ctx context.Context, key model.TagKey) (*model.Tag, error) {
	var t model.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, user_id, location_id, created_at FROM tags
		 WHERE name = ? AND user_id = ? AND location_id = ?`,
		key.Name, key.UserID, key.LocationID,
	).Scan(&t.ID, &t.Name, &t.UserID, &t.LocationID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find tag %s", key)
	}
	return &t, nil
}

func (s *SQLiteStore) AddContactTag(ctx context.Context, contactID, tagID string) error {
	_, err := s.db.ExecContext(ctx, sqliteInsertContactTagSQL, contactID, tagID)
	return eris.Wrapf(err, "sqlite: add tag %s to contact %s", tagID, contactID)
}

func (s *SQLiteStore) ContactTagIDs(ctx context.Context, contactID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_id FROM contact_tags WHERE contact_id = ? ORDER BY tag_id`, contactID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: contact tags")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact tag")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: contact tags iterate")
}

func (s *SQLiteStore) ListTags(ctx context.Context, filter TagFilter) ([]model.Tag, error) {
	query := `SELECT id, name, user_id, location_id, created_at FROM tags WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.LocationID != "" {
		query += ` AND location_id = ?`
		args = append(args, filter.LocationID)
	}
	query += ` ORDER BY name, user_id, location_id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tags")
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UserID, &t.LocationID, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tag")
		}
		tags = append(tags, t)
	}
	return tags, eris.Wrap(rows.Err(), "sqlite: list tags iterate")
}

func (s *SQLiteStore) FindCustomFieldByExternalID(ctx context.Context, externalID string) (*model.CustomFieldDefinition, error) {
	var d model.CustomFieldDefinition
	err := s.db.QueryRowContext(ctx,
		`SELECT id, cf_id, cf_name, data_type, placeholder, position, created_at, updated_at
		 FROM custom_fields WHERE cf_id = ?`,
		externalID,
	).Scan(&d.ID, &d.ExternalID, &d.Name, &d.DataType, &d.Placeholder, &d.Position, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find custom field %s", externalID)
	}
	return &d, nil
}

func (s *SQLiteStore) SaveCustomFieldDefinitions(ctx context.Context, defs []model.CustomFieldDefinition) (int64, error) {
	set := model.NewDefinitionSet(defs)
	if set.Len() == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var total int64
	for _, d := range set.Definitions {
		res, err := tx.ExecContext(ctx, sqliteUpsertFieldSQL,
			uuid.New().String(), d.ExternalID, d.Name, d.DataType, d.Placeholder, d.Position, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: save custom field %s", d.ExternalID)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit custom fields")
	}
	return total, nil
}

func (s *SQLiteStore) UpsertCustomFieldValue(ctx context.Context, v *model.ContactCustomFieldValue) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, sqliteUpsertFieldValueSQL,
		uuid.New().String(), v.ContactID, v.CustomFieldID, string(v.Value), v.UserID, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert custom field value %s/%s", v.ContactID, v.CustomFieldID)
}

func (s *SQLiteStore) ListCustomFieldValues(ctx context.Context, contactID string) ([]model.ContactCustomFieldValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, custom_field_id, value, user_id, created_at, updated_at
		 FROM contact_custom_fields WHERE contact_id = ? ORDER BY custom_field_id`,
		contactID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list custom field values")
	}
	defer rows.Close()

	var values []model.ContactCustomFieldValue
	for rows.Next() {
		var v model.ContactCustomFieldValue
		var raw string
		if err := rows.Scan(&v.ID, &v.ContactID, &v.CustomFieldID, &raw, &v.UserID, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan custom field value")
		}
		v.Value = []byte(raw)
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "sqlite: list custom field values iterate")
}

func (s *SQLiteStore) SearchTagNames(ctx context.Context, query string, limit int) ([]string, error) {
	return s.searchNames(ctx, `SELECT DISTINCT name FROM tags
		WHERE name LIKE '%' || ? || '%' ESCAPE '\' ORDER BY name LIMIT ?`, query, limit, "tag")
}

func (s *SQLiteStore) SearchCustomFieldNames(ctx context.Context, query string, limit int) ([]string, error) {
	return s.searchNames(ctx, `SELECT DISTINCT cf_name FROM custom_fields
		WHERE cf_name LIKE '%' || ? || '%' ESCAPE '\' ORDER BY cf_name LIMIT ?`, query, limit, "custom field")
}

// searchNames relies on LIKE being case-insensitive for ASCII in SQLite.
func (s *SQLiteStore) searchNames(ctx context.Context, stmt, query string, limit int, entity string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, stmt, db.EscapeLike(query), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: search %s names", entity)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s name", entity)
		}
		names = append(names, name)
	}
	return names, eris.Wrapf(rows.Err(), "sqlite: search %s names iterate", entity)
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, dl *resilience.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_failures (id, import_id, record_index, contact_id, record, error, error_type, failed_step, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dl.ID, dl.ImportID, dl.RecordIndex, sql.NullString{String: dl.ContactID, Valid: dl.ContactID != ""}, string(dl.Record),
		dl.Error, dl.ErrorType, dl.FailedStep, dl.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: record failure for import %s", dl.ImportID)
}

func (s *SQLiteStore) ListFailures(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	query := `SELECT id, import_id, record_index, contact_id, record, error, error_type, failed_step, created_at
		FROM import_failures WHERE 1=1`
	var args []any

	if filter.ImportID != "" {
		query += ` AND import_id = ?`
		args = append(args, filter.ImportID)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY created_at DESC, record_index LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close()

	var out []resilience.DeadLetter
	for rows.Next() {
		var dl resilience.DeadLetter
		var contactID sql.NullString
		var record string
		if err := rows.Scan(&dl.ID, &dl.ImportID, &dl.RecordIndex, &contactID, &record,
			&dl.Error, &dl.ErrorType, &dl.FailedStep, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		dl.ContactID = contactID.String
		dl.Record = []byte(record)
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

// sqliteArgs flattens nullable pointers into plain values or nil so the
// driver sees only primitive bind types.
func sqliteArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *string:
			if v != nil {
				out[i] = *v
			}
		case *bool:
			if v != nil {
				out[i] = *v
			}
		case *time.Time:
			if v != nil {
				out[i] = *v
			}
		default:
			out[i] = a
		}
	}
	return out
}
