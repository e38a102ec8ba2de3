package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Kind is the shape of a custom field value.
type Kind int

// Value kinds.
const (
	KindText Kind = iota + 1
	KindNumber
	KindList
	KindDate
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	case KindDate:
		return "date"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// kindByType maps the known type tags onto a value kind. Any other tag is
// opaque.
var kindByType = map[string]Kind{
	"text":            KindText,
	"largeText":       KindText,
	"string":          KindText,
	"phone":           KindText,
	"email":           KindText,
	"singleOptions":   KindText,
	"radio":           KindText,
	"number":          KindNumber,
	"numerical":       KindNumber,
	"monetary":        KindNumber,
	"monetory":        KindNumber,
	"checkbox":        KindList,
	"array":           KindList,
	"multipleOptions": KindList,
	"textboxList":     KindList,
	"date":            KindDate,
	"files":           KindOpaque,
	"fileUpload":      KindOpaque,
	"signature":       KindOpaque,
}

// KindOf returns the value kind for a type tag. Unknown tags are opaque.
func KindOf(typeTag string) Kind {
	if k, ok := kindByType[typeTag]; ok {
		return k
	}
	return KindOpaque
}

// AccessorName returns the entry key that carries the value for typeTag,
// e.g. "text" -> "fieldValueText".
func AccessorName(typeTag string) string {
	r, size := utf8.DecodeRuneInString(typeTag)
	if r == utf8.RuneError {
		return "fieldValue"
	}
	return "fieldValue" + string(unicode.ToUpper(r)) + typeTag[size:]
}

// FieldValue is a decoded custom field value. The concrete types are
// TextValue, NumberValue, ListValue, DateValue and OpaqueValue.
type FieldValue interface {
	Kind() Kind
	// JSON is the value as persisted.
	JSON() json.RawMessage
	fieldValue()
}

// TextValue is a string value.
type TextValue struct{ Text string }

// NumberValue is a numeric value kept in its literal form.
type NumberValue struct{ Number json.Number }

// ListValue is an array of scalar or object items.
type ListValue struct{ Items []json.RawMessage }

// DateValue is a point in time.
type DateValue struct{ At time.Time }

// OpaqueValue is stored verbatim (file references, signatures).
type OpaqueValue struct{ Raw json.RawMessage }

func (TextValue) Kind() Kind   { return KindText }
func (NumberValue) Kind() Kind { return KindNumber }
func (ListValue) Kind() Kind   { return KindList }
func (DateValue) Kind() Kind   { return KindDate }
func (OpaqueValue) Kind() Kind { return KindOpaque }

func (TextValue) fieldValue()   {}
func (NumberValue) fieldValue() {}
func (ListValue) fieldValue()   {}
func (DateValue) fieldValue()   {}
func (OpaqueValue) fieldValue() {}

func (v TextValue) JSON() json.RawMessage   { return mustMarshal(v.Text) }
func (v NumberValue) JSON() json.RawMessage { return json.RawMessage(v.Number.String()) }
func (v ListValue) JSON() json.RawMessage   { return json.RawMessage(compactJSON(mustMarshal(v.Items))) }
func (v DateValue) JSON() json.RawMessage   { return mustMarshal(v.At.UTC().Format(time.RFC3339Nano)) }
func (v OpaqueValue) JSON() json.RawMessage { return json.RawMessage(compactJSON(v.Raw)) }

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// constructors holds one decoder per kind.
var constructors = map[Kind]func(json.RawMessage) (FieldValue, error){
	KindText:   newTextValue,
	KindNumber: newNumberValue,
	KindList:   newListValue,
	KindDate:   newDateValue,
	KindOpaque: newOpaqueValue,
}

// DecodeFieldValue decodes raw according to typeTag. A value whose shape
// does not fit the tag's kind is kept verbatim as an OpaqueValue. Only null
// or invalid JSON fails.
func DecodeFieldValue(typeTag string, raw json.RawMessage) (FieldValue, error) {
	if isNull(raw) {
		return nil, eris.New("value is null")
	}
	v, err := constructors[KindOf(typeTag)](raw)
	if err == nil {
		return v, nil
	}
	return newOpaqueValue(raw)
}

func newTextValue(raw json.RawMessage) (FieldValue, error) {
	s, ok := scalarText(raw)
	if !ok {
		return nil, eris.New("text value must be a string or number")
	}
	return TextValue{Text: s}, nil
}

func newNumberValue(raw json.RawMessage) (FieldValue, error) {
	s, ok := scalarText(raw)
	if !ok {
		return nil, eris.New("number value must be numeric")
	}
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseFloat(s, 64); err != nil || !json.Valid([]byte(s)) {
		return nil, eris.Errorf("number value %q is not numeric", s)
	}
	return NumberValue{Number: json.Number(s)}, nil
}

func newListValue(raw json.RawMessage) (FieldValue, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, eris.New("list value must be an array")
	}
	return ListValue{Items: items}, nil
}

func newDateValue(raw json.RawMessage) (FieldValue, error) {
	t := parseTime(raw)
	if t == nil {
		return nil, eris.Errorf("date value %s is not a recognized timestamp", string(raw))
	}
	return DateValue{At: *t}, nil
}

func newOpaqueValue(raw json.RawMessage) (FieldValue, error) {
	if !json.Valid(raw) {
		return nil, eris.New("opaque value is not valid JSON")
	}
	return OpaqueValue{Raw: append(json.RawMessage(nil), raw...)}, nil
}
