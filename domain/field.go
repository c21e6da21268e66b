package domain

import (
	"fmt"
	"strings"
	"time"
)

// Field names an individually editable task field. Values match the wire names.
type Field string

const (
	FieldTitle    Field = "title"
	FieldNotes    Field = "notes"
	FieldTags     Field = "tags"
	FieldDueDate  Field = "due_date"
	FieldRemindMe Field = "remind_me"
	FieldComplete Field = "complete"
	FieldPriority Field = "priority"
)

// Fields lists every editable field.
var Fields = []Field{FieldTitle, FieldNotes, FieldTags, FieldDueDate, FieldRemindMe, FieldComplete, FieldPriority}

// ParseField maps a wire name onto a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Fields {
		if f == known {
			return f, nil
		}
	}
	return "", &ValidationError{Field: s, Reason: "unknown field"}
}

// Patch is a partial task update keyed by field. Clearing a timestamp is
// expressed as a nil *time.Time and encodes to JSON null.
type Patch map[Field]any

// NewPatch builds a single-field patch with a normalized value.
func NewPatch(field Field, value any) (Patch, error) {
	v, err := NormalizeField(field, value)
	if err != nil {
		return nil, err
	}
	return Patch{field: v}, nil
}

// NormalizeField validates value for field and converts it to the type stored
// on Task: string, bool or *time.Time.
func NormalizeField(field Field, value any) (any, error) {
	switch field {
	case FieldTitle:
		s, ok := value.(string)
		if !ok {
			return nil, typeError(field, "string", value)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, &ValidationError{Field: string(field), Reason: "must not be empty"}
		}
		return s, nil
	case FieldNotes, FieldTags:
		s, ok := value.(string)
		if !ok {
			return nil, typeError(field, "string", value)
		}
		return s, nil
	case FieldComplete, FieldPriority:
		b, ok := value.(bool)
		if !ok {
			return nil, typeError(field, "bool", value)
		}
		return b, nil
	case FieldDueDate, FieldRemindMe:
		switch v := value.(type) {
		case nil:
			return (*time.Time)(nil), nil
		case *time.Time:
			return cloneTime(v), nil
		case time.Time:
			return &v, nil
		default:
			return nil, typeError(field, "timestamp or nil", value)
		}
	default:
		return nil, &ValidationError{Field: string(field), Reason: "unknown field"}
	}
}

// ValidateField reports whether value is acceptable for field.
func ValidateField(field Field, value any) error {
	_, err := NormalizeField(field, value)
	return err
}

func typeError(field Field, want string, got any) error {
	return &ValidationError{Field: string(field), Reason: fmt.Sprintf("expected %s, got %T", want, got)}
}

// Value returns the current value of a single field.
func (t Task) Value(field Field) any {
	switch field {
	case FieldTitle:
		return t.Title
	case FieldNotes:
		return t.Notes
	case FieldTags:
		return t.Tags
	case FieldDueDate:
		return cloneTime(t.DueDate)
	case FieldRemindMe:
		return cloneTime(t.RemindMe)
	case FieldComplete:
		return t.Complete
	case FieldPriority:
		return t.Priority
	}
	return nil
}

// WithField returns a copy of t with exactly one field replaced.
func (t Task) WithField(field Field, value any) (Task, error) {
	v, err := NormalizeField(field, value)
	if err != nil {
		return t, err
	}
	out := t.Clone()
	switch field {
	case FieldTitle:
		out.Title = v.(string)
	case FieldNotes:
		out.Notes = v.(string)
	case FieldTags:
		out.Tags = v.(string)
	case FieldDueDate:
		out.DueDate = v.(*time.Time)
	case FieldRemindMe:
		out.RemindMe = v.(*time.Time)
	case FieldComplete:
		out.Complete = v.(bool)
	case FieldPriority:
		out.Priority = v.(bool)
	}
	return out, nil
}
