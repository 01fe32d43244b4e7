package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

// AlertUpdate changes the top-level attributes of an alert. Nil members
// are left alone.
type AlertUpdate struct {
	Name  *string `json:"name,omitempty"`
	Text  *string `json:"text,omitempty"`
	Style *string `json:"style,omitempty"`
}

// Validate rejects an empty update or a blank name.
func (u AlertUpdate) Validate() error {
	if u.Name == nil && u.Text == nil && u.Style == nil {
		return &models.ValidationError{Message: "update is empty"}
	}
	if u.Name != nil {
		return ValidateName(*u.Name)
	}
	return nil
}

// ValidateName checks an alert display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &models.ValidationError{Field: "name", Message: "name is required"}
	}
	if len(name) > 200 {
		return &models.ValidationError{Field: "name", Message: "name must be 200 characters or less"}
	}
	return nil
}

// Update applies u in a single edit.
func (s *Store) Update(ctx context.Context, id models.AlertID, u AlertUpdate) error {
	if err := u.Validate(); err != nil {
		s.count("update", err)
		return err
	}
	return s.edit(ctx, "update", id, func(a *models.Alert) error {
		if u.Name != nil {
			a.Name = strings.TrimSpace(*u.Name)
		}
		if u.Text != nil {
			a.LastText = *u.Text
		}
		if u.Style != nil {
			a.LastStyle = *u.Style
		}
		return nil
	})
}

// SetText replaces the markdown template.
func (s *Store) SetText(ctx context.Context, id models.AlertID, text string) error {
	return s.edit(ctx, "set_text", id, func(a *models.Alert) error {
		a.LastText = text
		return nil
	})
}

// SetStyle replaces the CSS template.
func (s *Store) SetStyle(ctx context.Context, id models.AlertID, style string) error {
	return s.edit(ctx, "set_style", id, func(a *models.Alert) error {
		a.LastStyle = style
		return nil
	})
}

// SetName renames the alert.
func (s *Store) SetName(ctx context.Context, id models.AlertID, name string) error {
	return s.edit(ctx, "set_name", id, func(a *models.Alert) error {
		if err := ValidateName(name); err != nil {
			return err
		}
		a.Name = strings.TrimSpace(name)
		return nil
	})
}

// AddField appends a field and returns the id assigned to it.
func (s *Store) AddField(ctx context.Context, id models.AlertID, name models.FieldName, value models.FieldValue) (models.FieldID, error) {
	var fieldID models.FieldID
	err := s.edit(ctx, "add_field", id, func(a *models.Alert) error {
		n, err := models.ParseFieldName(name.String())
		if err != nil {
			return err
		}
		fieldID = a.AddField(n, value)
		return nil
	})
	if err != nil {
		return "", err
	}
	return fieldID, nil
}

// UpdateField applies u to the field with the given id.
func (s *Store) UpdateField(ctx context.Context, id models.AlertID, fieldID models.FieldID, u models.FieldUpdate) error {
	return s.edit(ctx, "update_field", id, func(a *models.Alert) error {
		return a.UpdateField(fieldID, u)
	})
}

// UpdateFieldByName applies u to the first field called name and returns
// that field's id. With duplicate names only the first one is touched.
func (s *Store) UpdateFieldByName(ctx context.Context, id models.AlertID, name models.FieldName, u models.FieldUpdate) (models.FieldID, error) {
	var fieldID models.FieldID
	err := s.edit(ctx, "update_field", id, func(a *models.Alert) error {
		f, ok := a.FieldByName(name)
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrFieldNotFound, name)
		}
		fieldID = f.ID
		return a.UpdateField(f.ID, u)
	})
	if err != nil {
		return "", err
	}
	return fieldID, nil
}

// ReplaceField swaps a field's value, possibly changing its kind.
func (s *Store) ReplaceField(ctx context.Context, id models.AlertID, fieldID models.FieldID, value models.FieldValue) error {
	return s.edit(ctx, "replace_field", id, func(a *models.Alert) error {
		return a.ReplaceField(fieldID, value)
	})
}

// RemoveField deletes a field.
func (s *Store) RemoveField(ctx context.Context, id models.AlertID, fieldID models.FieldID) error {
	return s.edit(ctx, "remove_field", id, func(a *models.Alert) error {
		return a.RemoveField(fieldID)
	})
}
