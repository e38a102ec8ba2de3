package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

// anyArgs matches n bound arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_UpsertContact_ReturnsStoredIdentity(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO "contacts" .* ON CONFLICT \("contact_id"\) DO UPDATE SET .* RETURNING "id", "created_at"`).
		WithArgs(anyArgs(len(contactColumns))...).
		WillReturnRows(mock.NewRows([]string{"id", "created_at"}).AddRow("existing-id", created))

	email := "jane@example.com"
	got, err := s.UpsertContact(context.Background(), &model.Contact{ContactID: "c-1", Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "existing-id", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, "c-1", got.ContactID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertContact_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO "contacts"`).
		WithArgs(anyArgs(len(contactColumns))...).
		WillReturnError(errors.New("connection reset"))

	_, err := s.UpsertContact(context.Background(), &model.Contact{ContactID: "c-9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: upsert contact c-9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetContactByExternalID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM contacts WHERE contact_id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.GetContactByExternalID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountContacts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM contacts`).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountContacts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrCreateTag_Existing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, user_id, location_id, created_at FROM tags`).
		WithArgs("vip", "u1", "loc1").
		WillReturnRows(mock.NewRows([]string{"id", "name", "user_id", "location_id", "created_at"}).
			AddRow("tag-1", "vip", "u1", "loc1", time.Now()))

	tag, err := s.GetOrCreateTag(context.Background(), model.TagKey{Name: "vip", UserID: "u1", LocationID: "loc1"})
	require.NoError(t, err)
	assert.Equal(t, "tag-1", tag.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrCreateTag_CreatesThenRefetches(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	key := model.TagKey{Name: "lead", UserID: "u1"}

	mock.ExpectQuery(`FROM tags`).
		WithArgs("lead", "u1", "").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO "tags" .* ON CONFLICT \("name", "user_id", "location_id"\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "lead", "u1", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`FROM tags`).
		WithArgs("lead", "u1", "").
		WillReturnRows(mock.NewRows([]string{"id", "name", "user_id", "location_id", "created_at"}).
			AddRow("winner", "lead", "u1", "", time.Now()))

	tag, err := s.GetOrCreateTag(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "winner", tag.ID)
	assert.Equal(t, "", tag.LocationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddContactTag_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "contact_tags" .* DO NOTHING`).
		WithArgs("contact-1", "tag-1").
		WillReturnError(errors.New("foreign key violation"))

	err := s.AddContactTag(context.Background(), "contact-1", "tag-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add tag tag-1 to contact contact-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindCustomFieldByExternalID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM custom_fields WHERE cf_id = \$1`).
		WithArgs("cf-unknown").
		WillReturnError(pgx.ErrNoRows)

	d, err := s.FindCustomFieldByExternalID(context.Background(), "cf-unknown")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCustomFieldDefinitions_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.SaveCustomFieldDefinitions(context.Background(), []model.CustomFieldDefinition{{ExternalID: "  "}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCustomFieldValue(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "contact_custom_fields" .* ON CONFLICT \("contact_id", "custom_field_id"\) DO UPDATE SET "value" = EXCLUDED."value"`).
		WithArgs(pgxmock.AnyArg(), "contact-1", "field-1", []byte(`"blue"`), "u1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertCustomFieldValue(context.Background(), &model.ContactCustomFieldValue{
		ContactID: "contact-1", CustomFieldID: "field-1", Value: []byte(`"blue"`), UserID: "u1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchTagNames_EscapesWildcards(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT name FROM tags\s+WHERE name ILIKE`).
		WithArgs(`50\%`, 5).
		WillReturnRows(mock.NewRows([]string{"name"}).AddRow("50% off"))

	names, err := s.SearchTagNames(context.Background(), "50%", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"50% off"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchCustomFieldNames_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT cf_name FROM custom_fields`).
		WithArgs("color", 5).
		WillReturnError(errors.New("boom"))

	_, err := s.SearchCustomFieldNames(context.Background(), "color", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search custom field names")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO import_failures`).
		WithArgs(pgxmock.AnyArg(), "imp-1", 3, pgxmock.AnyArg(), []byte(`{"id":""}`), "contact id required",
			resilience.ErrorTypePermanent, "contact", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dl := &resilience.DeadLetter{
		ImportID:    "imp-1",
		RecordIndex: 3,
		Record:      []byte(`{"id":""}`),
		Error:       "contact id required",
		ErrorType:   resilience.ErrorTypePermanent,
		FailedStep:  "contact",
	}
	require.NoError(t, s.RecordFailure(context.Background(), dl))
	assert.NotEmpty(t, dl.ID)
	assert.False(t, dl.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFailures_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	contactID := "c-1"

	mock.ExpectQuery(`FROM import_failures WHERE true AND import_id = \$1 AND error_type = \$2 .* LIMIT \$3`).
		WithArgs("imp-1", "transient", 10).
		WillReturnRows(mock.NewRows([]string{
			"id", "import_id", "record_index", "contact_id", "record", "error", "error_type", "failed_step", "created_at",
		}).AddRow("dl-1", "imp-1", 0, &contactID, []byte(`{}`), "timeout", "transient", "contact", time.Now()))

	out, err := s.ListFailures(context.Background(), resilience.DeadLetterFilter{
		ImportID: "imp-1", ErrorType: "transient", Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c-1", out[0].ContactID)
	assert.JSONEq(t, `{}`, string(out[0].Record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS contacts`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
