package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/ingest"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/resilience"
	"github.com/sells-group/leadsync/internal/store"
	"github.com/sells-group/leadsync/internal/suggest"
)

type fakeImporter struct {
	summary *ingest.Summary
	err     error

	userID string
	path   string
	body   []byte
}

func (f *fakeImporter) ImportFile(_ context.Context, userID, path string, _ bool) (*ingest.Summary, error) {
	f.userID = userID
	f.path = path
	f.body, _ = os.ReadFile(path)
	return f.summary, f.err
}

type fakeSuggester struct {
	names []string
	err   error
}

func (f *fakeSuggester) Suggest(_ context.Context, _ string) ([]string, error) {
	return f.names, f.err
}

func uploadRequest(t *testing.T, field string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "leads.json")
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(userHeader, "user-1")
	return req
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

func TestBuildRouter_Health(t *testing.T) {
	h := buildRouter(&server{}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHandleImport_Success(t *testing.T) {
	imp := &fakeImporter{summary: &ingest.Summary{
		Message:         ingest.MessageProcessed,
		TotalRecords:    3,
		InsertedRecords: 2,
	}}
	dir := t.TempDir()
	h := buildRouter(&server{imports: imp, tempDir: dir}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "file", []byte(`{"leadsData": []}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "File processed successfully", body["message"])
	assert.EqualValues(t, 3, body["totalRecords"])
	assert.EqualValues(t, 2, body["insertedRecords"])

	assert.Equal(t, "user-1", imp.userID)
	assert.Equal(t, dir, filepath.Dir(imp.path))
	assert.JSONEq(t, `{"leadsData": []}`, string(imp.body))
	_, err := os.Stat(imp.path)
	assert.True(t, os.IsNotExist(err), "spooled upload is removed")
}

func TestHandleImport_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"malformed", eris.Wrap(ingest.ErrMalformedInput, "document is not valid JSON"), http.StatusBadRequest, "Invalid JSON format"},
		{"schema", eris.Wrap(ingest.ErrInvalidSchema, `missing "leadsData"`), http.StatusBadRequest, "Invalid JSON structure"},
		{"other", errors.New("disk full"), http.StatusInternalServerError, "File processing failed"},
		{"interrupted", context.DeadlineExceeded, http.StatusInternalServerError, "File processing failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := buildRouter(&server{imports: &fakeImporter{err: tt.err}, tempDir: t.TempDir()}, nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, uploadRequest(t, "file", []byte(`{}`)))

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.msg, decodeMessage(t, rr))
		})
	}
}

func TestHandleImport_NoFile(t *testing.T) {
	imp := &fakeImporter{}
	h := buildRouter(&server{imports: imp, tempDir: t.TempDir()}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "document", []byte(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No file uploaded", decodeMessage(t, rr))
	assert.Empty(t, imp.path)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/imports", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleImport_TooLarge(t *testing.T) {
	h := buildRouter(&server{imports: &fakeImporter{}, tempDir: t.TempDir(), maxUpload: 64}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "file", bytes.Repeat([]byte("x"), 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHandleSuggest(t *testing.T) {
	tests := []struct {
		name   string
		sug    *fakeSuggester
		status int
		want   string
	}{
		{"matches", &fakeSuggester{names: []string{"vip", "Visit Date"}}, http.StatusOK, `{"suggestions":["vip","Visit Date"]}`},
		{"blank", &fakeSuggester{err: suggest.ErrQueryRequired}, http.StatusBadRequest, `{"message":"Search term is required"}`},
		{"none", &fakeSuggester{err: suggest.ErrNoMatches}, http.StatusNotFound, `{"message":"No matching data found"}`},
		{"failure", &fakeSuggester{err: errors.New("boom")}, http.StatusInternalServerError, `{"message":"Error fetching search suggestions","error":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := buildRouter(&server{suggest: tt.sug}, nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/suggestions?q=vi", nil))
			assert.Equal(t, tt.status, rr.Code)
			assert.JSONEq(t, tt.want, rr.Body.String())
		})
	}
}

func TestBuildRouter_CORSPreflight(t *testing.T) {
	h := buildRouter(&server{}, []string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/imports", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_EndToEndSQLite(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))
	_, err = st.SaveCustomFieldDefinitions(ctx, []model.CustomFieldDefinition{
		{ExternalID: "cf-src", Name: "Lead Source", DataType: "text"},
	})
	require.NoError(t, err)

	engineCfg := ingest.DefaultConfig()
	engineCfg.Retry = resilience.RetryConfig{MaxAttempts: 1}
	h := buildRouter(&server{
		imports: ingest.New(st, engineCfg),
		suggest: suggest.New(st, 5),
		tempDir: t.TempDir(),
	}, nil)

	doc := []byte(`{"leadsData": [
		{"id": "c-1", "email": "A@Example.com", "locationId": "L1", "tags": ["Leader"],
		 "customFields": [{"id": "cf-src", "type": "text", "fieldValueText": "web"}]},
		{"id": "c-2", "email": ""}
	]}`)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "file", doc))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var sum ingest.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 2, sum.TotalRecords)
	assert.Equal(t, 1, sum.InsertedRecords)
	assert.Equal(t, 1, sum.Skipped)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/suggestions?q=lead", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"suggestions":["Leader","Lead Source"]}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/suggestions?q=%20", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
