package models

import (
	"fmt"
	"unicode/utf8"
)

// Alert is a named document with a markdown template, a CSS template and
// an ordered list of dynamic fields substituted into both.
type Alert struct {
	AlertID   AlertID `json:"alert_id"`
	Name      string  `json:"name"`
	LastText  string  `json:"last_text"`
	LastStyle string  `json:"last_style"`
	Fields    []Field `json:"fields"`
}

// NewAlert creates an Alert with empty text, style and no fields.
func NewAlert(id AlertID, name string) *Alert {
	return &Alert{
		AlertID: id,
		Name:    name,
		Fields:  []Field{},
	}
}

// Clone returns a deep copy of a.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.Fields != nil {
		c.Fields = make([]Field, len(a.Fields))
		copy(c.Fields, a.Fields)
	}
	return &c
}

// FieldByID returns the field with the given id.
func (a *Alert) FieldByID(id FieldID) (Field, bool) {
	if i := a.indexOf(id); i >= 0 {
		return a.Fields[i], true
	}
	return Field{}, false
}

// FieldByName returns the first field with the given name in sequence order.
// Duplicate names are allowed; which one the caller meant is ambiguous.
func (a *Alert) FieldByName(name FieldName) (Field, bool) {
	for _, f := range a.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AddField appends a new field and returns its freshly generated id.
func (a *Alert) AddField(name FieldName, value FieldValue) FieldID {
	id := NewFieldID()
	for a.indexOf(id) >= 0 {
		id = NewFieldID()
	}
	a.Fields = append(a.Fields, Field{ID: id, Name: name, Value: value})
	return id
}

// RemoveField deletes the field with the given id.
func (a *Alert) RemoveField(id FieldID) error {
	i := a.indexOf(id)
	if i < 0 {
		return fieldNotFound(id)
	}
	a.Fields = append(a.Fields[:i], a.Fields[i+1:]...)
	return nil
}

// ReplaceField swaps the value of a field, allowing its kind to change.
func (a *Alert) ReplaceField(id FieldID, value FieldValue) error {
	i := a.indexOf(id)
	if i < 0 {
		return fieldNotFound(id)
	}
	a.Fields[i].Value = value
	return nil
}

// SetField parses raw into the field's current kind.
func (a *Alert) SetField(id FieldID, raw string) error {
	i := a.indexOf(id)
	if i < 0 {
		return fieldNotFound(id)
	}
	v, err := a.Fields[i].Value.Set(raw)
	if err != nil {
		return err
	}
	a.Fields[i].Value = v
	return nil
}

// IncrementField adds delta to a counter field. Text fields are left as is.
func (a *Alert) IncrementField(id FieldID, delta int64) error {
	i := a.indexOf(id)
	if i < 0 {
		return fieldNotFound(id)
	}
	v, err := a.Fields[i].Value.Increment(delta)
	if err != nil {
		return err
	}
	a.Fields[i].Value = v
	return nil
}

// RenameField changes the label of a field.
func (a *Alert) RenameField(id FieldID, name FieldName) error {
	i := a.indexOf(id)
	if i < 0 {
		return fieldNotFound(id)
	}
	a.Fields[i].Name = name
	return nil
}

// UpdateField applies u to the field with the given id. Nothing is changed
// when u is invalid or any part of it fails.
func (a *Alert) UpdateField(id FieldID, u FieldUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	i := a.indexOf(id)
	if i < 0 {
		return fieldNotFound(id)
	}

	f := a.Fields[i]
	if u.Set != nil {
		v, err := f.Value.Set(*u.Set)
		if err != nil {
			return err
		}
		f.Value = v
	}
	if u.Incr != nil {
		v, err := f.Value.Increment(*u.Incr)
		if err != nil {
			return err
		}
		f.Value = v
	}
	if u.Name != nil {
		f.Name = *u.Name
	}
	a.Fields[i] = f
	return nil
}

// Validate checks that every string in a is valid UTF-8. Documents are
// stored as JSON, which cannot carry other byte sequences unchanged.
func (a *Alert) Validate() error {
	switch {
	case !utf8.ValidString(a.Name):
		return invalidUTF8("name")
	case !utf8.ValidString(a.LastText):
		return invalidUTF8("text")
	case !utf8.ValidString(a.LastStyle):
		return invalidUTF8("style")
	}
	for _, f := range a.Fields {
		if !utf8.ValidString(string(f.Name)) {
			return invalidUTF8("field name")
		}
		if s, ok := f.Value.Text(); ok && !utf8.ValidString(s) {
			return invalidUTF8("field " + string(f.Name))
		}
	}
	return nil
}

func invalidUTF8(field string) error {
	return &ValidationError{Field: field, Message: "must be valid UTF-8"}
}

func (a *Alert) indexOf(id FieldID) int {
	for i, f := range a.Fields {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func fieldNotFound(id FieldID) error {
	return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
}

// Equal reports whether a and b describe the same document.
func (a *Alert) Equal(b *Alert) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.AlertID != b.AlertID || a.Name != b.Name || a.LastText != b.LastText || a.LastStyle != b.LastStyle {
		return false
	}
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		fa, fb := a.Fields[i], b.Fields[i]
		if fa.ID != fb.ID || fa.Name != fb.Name || !fa.Value.Equal(fb.Value) {
			return false
		}
	}
	return true
}
