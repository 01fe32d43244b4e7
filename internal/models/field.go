package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldKind is the variant of a FieldValue.
type FieldKind string

const (
	FieldKindText    FieldKind = "text"
	FieldKindCounter FieldKind = "counter"
)

// ParseFieldKind converts a string to FieldKind.
func ParseFieldKind(s string) (FieldKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return FieldKindText, nil
	case "counter":
		return FieldKindCounter, nil
	default:
		return "", &ValidationError{Field: "kind", Message: "kind must be 'text' or 'counter'"}
	}
}

// FieldValue is a tagged union of Text(string) and Counter(int64).
// The zero value is an empty Text.
type FieldValue struct {
	kind    FieldKind
	text    string
	counter int64
}

// TextValue returns a Text value.
func TextValue(s string) FieldValue {
	return FieldValue{kind: FieldKindText, text: s}
}

// CounterValue returns a Counter value.
func CounterValue(n int64) FieldValue {
	return FieldValue{kind: FieldKindCounter, counter: n}
}

// NewFieldValue parses raw into a value of the given kind.
func NewFieldValue(kind FieldKind, raw string) (FieldValue, error) {
	switch kind {
	case FieldKindText:
		return TextValue(raw), nil
	case FieldKindCounter:
		return CounterValue(0).Set(raw)
	default:
		return FieldValue{}, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown field kind %q", kind)}
	}
}

// Kind returns the variant of v.
func (v FieldValue) Kind() FieldKind {
	if v.kind == "" {
		return FieldKindText
	}
	return v.kind
}

// Text returns the string payload and whether v is a Text.
func (v FieldValue) Text() (string, bool) {
	return v.text, v.Kind() == FieldKindText
}

// Counter returns the integer payload and whether v is a Counter.
func (v FieldValue) Counter() (int64, bool) {
	return v.counter, v.Kind() == FieldKindCounter
}

// Set parses raw into the current variant. A Counter rejects text that is
// not an integer; the kind never changes.
func (v FieldValue) Set(raw string) (FieldValue, error) {
	switch v.Kind() {
	case FieldKindCounter:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return v, &ValidationError{Field: "value", Message: fmt.Sprintf("counter value must be an integer, got %q", raw)}
		}
		return CounterValue(n), nil
	default:
		return TextValue(raw), nil
	}
}

// CanIncrement reports whether Increment has an effect.
func (v FieldValue) CanIncrement() bool {
	return v.Kind() == FieldKindCounter
}

// Increment adds delta to a Counter. It is a no-op for Text. A sum that
// does not fit in an int64 is rejected and v is returned unchanged.
func (v FieldValue) Increment(delta int64) (FieldValue, error) {
	if !v.CanIncrement() {
		return v, nil
	}
	sum := v.counter + delta
	if (delta > 0 && sum < v.counter) || (delta < 0 && sum > v.counter) {
		return v, &ValidationError{Field: "incr", Message: fmt.Sprintf("counter %d cannot be incremented by %d without overflow", v.counter, delta)}
	}
	return CounterValue(sum), nil
}

// String returns the display form used in rendering.
func (v FieldValue) String() string {
	if v.Kind() == FieldKindCounter {
		return strconv.FormatInt(v.counter, 10)
	}
	return v.text
}

// MarshalJSON encodes v as {"Text": "..."} or {"Counter": N}.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Kind() == FieldKindCounter {
		return json.Marshal(map[string]int64{"Counter": v.counter})
	}
	return json.Marshal(map[string]string{"Text": v.text})
}

// UnmarshalJSON decodes the tagged representation written by MarshalJSON.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("decode field value: expected exactly one variant, got %d", len(tagged))
	}
	if raw, ok := tagged["Text"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode text value: %w", err)
		}
		*v = TextValue(s)
		return nil
	}
	if raw, ok := tagged["Counter"]; ok {
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("decode counter value: %w", err)
		}
		*v = CounterValue(n)
		return nil
	}
	return fmt.Errorf("decode field value: unknown variant")
}

// Field is one named dynamic value of an alert.
type Field struct {
	ID    FieldID
	Name  FieldName
	Value FieldValue
}

// MarshalJSON encodes f as [field_id, field_name, field_value].
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.ID, f.Name, f.Value})
}

// UnmarshalJSON decodes the tuple written by MarshalJSON.
func (f *Field) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("decode field: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("decode field: expected 3 elements, got %d", len(parts))
	}
	var out Field
	if err := json.Unmarshal(parts[0], &out.ID); err != nil {
		return fmt.Errorf("decode field id: %w", err)
	}
	if err := json.Unmarshal(parts[1], &out.Name); err != nil {
		return fmt.Errorf("decode field name: %w", err)
	}
	if err := json.Unmarshal(parts[2], &out.Value); err != nil {
		return err
	}
	*f = out
	return nil
}

// FieldUpdate describes a change to one field. Set and Incr are mutually
// exclusive; Name renames the field.
type FieldUpdate struct {
	Set  *string    `json:"set,omitempty"`
	Incr *int64     `json:"incr,omitempty"`
	Name *FieldName `json:"name,omitempty"`
}

// Validate rejects update combinations that have no single meaning.
func (u FieldUpdate) Validate() error {
	if u.Set != nil && u.Incr != nil {
		return &ValidationError{Message: "only one of 'set' and 'incr' may be given"}
	}
	if u.Set == nil && u.Incr == nil && u.Name == nil {
		return &ValidationError{Message: "update is empty"}
	}
	if u.Name != nil {
		if _, err := ParseFieldName(string(*u.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether v and o hold the same variant and payload.
func (v FieldValue) Equal(o FieldValue) bool {
	return v.Kind() == o.Kind() && v.text == o.text && v.counter == o.counter
}
