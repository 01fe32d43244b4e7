package alerts

import (
	"strings"

	alertstore "github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/models"
)

// maxBodyBytes bounds request bodies; alert templates are small.
const maxBodyBytes = 1 << 20

// CreateRequest creates an alert. A missing id is generated.
type CreateRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Text  string `json:"text"`
	Style string `json:"style"`
}

// UpdateRequest changes top-level alert attributes.
type UpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Text  *string `json:"text,omitempty"`
	Style *string `json:"style,omitempty"`
}

// AddFieldRequest appends a field.
type AddFieldRequest struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// ReplaceFieldRequest swaps a field's value, possibly changing its kind.
type ReplaceFieldRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// UpdateFieldRequest sets, increments or renames a field.
type UpdateFieldRequest struct {
	Set  *string `json:"set,omitempty"`
	Incr *int64  `json:"incr,omitempty"`
	Name *string `json:"name,omitempty"`
}

func (r *CreateRequest) toAlert() (*models.Alert, error) {
	id := models.NewAlertID()
	if r.ID != "" {
		parsed, err := models.ParseAlertID(strings.TrimSpace(r.ID))
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	if err := alertstore.ValidateName(r.Name); err != nil {
		return nil, err
	}
	a := models.NewAlert(id, strings.TrimSpace(r.Name))
	a.LastText = r.Text
	a.LastStyle = r.Style
	return a, nil
}

func (r *UpdateRequest) toUpdate() alertstore.AlertUpdate {
	return alertstore.AlertUpdate{Name: r.Name, Text: r.Text, Style: r.Style}
}

func (r *AddFieldRequest) parse() (models.FieldName, models.FieldValue, error) {
	name, err := models.ParseFieldName(r.Name)
	if err != nil {
		return "", models.FieldValue{}, err
	}
	kind, err := models.ParseFieldKind(r.Kind)
	if err != nil {
		return "", models.FieldValue{}, err
	}
	value, err := models.NewFieldValue(kind, r.Value)
	if err != nil {
		return "", models.FieldValue{}, err
	}
	return name, value, nil
}

func (r *ReplaceFieldRequest) parse() (models.FieldValue, error) {
	kind, err := models.ParseFieldKind(r.Kind)
	if err != nil {
		return models.FieldValue{}, err
	}
	return models.NewFieldValue(kind, r.Value)
}

func (r *UpdateFieldRequest) toUpdate() (models.FieldUpdate, error) {
	u := models.FieldUpdate{Set: r.Set, Incr: r.Incr}
	if r.Name != nil {
		name, err := models.ParseFieldName(*r.Name)
		if err != nil {
			return models.FieldUpdate{}, err
		}
		u.Name = &name
	}
	if err := u.Validate(); err != nil {
		return models.FieldUpdate{}, err
	}
	return u, nil
}
