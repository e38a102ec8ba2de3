package ingest

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// recordsField is the top-level key holding the lead list.
const recordsField = "leadsData"

// Document is a parsed lead export. Records are kept raw and decoded one at
// a time so a bad record cannot fail the whole document.
type Document struct {
	Records []json.RawMessage
}

// ParseDocument validates the shape of a lead export. It returns
// ErrMalformedInput when data is not JSON and ErrInvalidSchema when the
// record list is missing or not an array.
func ParseDocument(data []byte) (*Document, error) {
	if !json.Valid(data) {
		return nil, eris.Wrap(ErrMalformedInput, "document is not valid JSON")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, eris.Wrap(ErrInvalidSchema, "document is not a JSON object")
	}

	raw, ok := top[recordsField]
	if !ok || isNull(raw) {
		return nil, eris.Wrapf(ErrInvalidSchema, "missing %q", recordsField)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, eris.Wrapf(ErrInvalidSchema, "%q is not an array", recordsField)
	}

	return &Document{Records: records}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
