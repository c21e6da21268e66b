package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalKeepsNullReminder(t *testing.T) {
	task := Task{ID: "t1", Title: "Title"}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"remind_me\":null") {
		t.Fatalf("expected remind_me to be present as null, got %s", payload)
	}
}

func TestPatchMarshalEncodesClearAsNull(t *testing.T) {
	p, err := NewPatch(FieldRemindMe, nil)
	if err != nil {
		t.Fatalf("new patch: %v", err)
	}
	payload, err := sonic.Marshal(p)
	if err != nil {
		t.Fatalf("marshal patch: %v", err)
	}
	if string(payload) != `{"remind_me":null}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestWithFieldTouchesOnlyOneField(t *testing.T) {
	due := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	orig := Task{ID: "t1", Title: "Buy milk", Notes: "2%", DueDate: &due}

	got, err := orig.WithField(FieldNotes, "skimmed")
	if err != nil {
		t.Fatalf("with field: %v", err)
	}
	if got.Notes != "skimmed" || got.Title != "Buy milk" || !got.DueDate.Equal(due) {
		t.Fatalf("unexpected task: %#v", got)
	}
	if orig.Notes != "2%" {
		t.Fatalf("original mutated: %#v", orig)
	}
	if got.DueDate == orig.DueDate {
		t.Fatalf("due date pointer shared with original")
	}
}

func TestNormalizeFieldRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value any
	}{
		{name: "blank title", field: FieldTitle, value: "   "},
		{name: "title type", field: FieldTitle, value: 3},
		{name: "complete type", field: FieldComplete, value: "yes"},
		{name: "remind type", field: FieldRemindMe, value: "tomorrow"},
		{name: "unknown", field: Field("colour"), value: "red"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateField(tt.field, tt.value)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNormalizeFieldAcceptsTimeValue(t *testing.T) {
	at := time.Date(2024, 6, 9, 8, 0, 0, 0, time.UTC)
	v, err := NormalizeField(FieldRemindMe, at)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	ptr, ok := v.(*time.Time)
	if !ok || ptr == nil || !ptr.Equal(at) {
		t.Fatalf("unexpected value %#v", v)
	}
}

func TestNewTaskValidateTrimsTitle(t *testing.T) {
	n := NewTask{Title: "  Call mom "}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if n.Title != "Call mom" {
		t.Fatalf("expected trimmed title, got %q", n.Title)
	}
	blank := NewTask{Title: " \t"}
	if err := blank.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGatewayErrorTemporary(t *testing.T) {
	if !(&GatewayError{Op: "list", Err: errors.New("dial")}).Temporary() {
		t.Fatalf("transport failures should be temporary")
	}
	if (&GatewayError{Op: "list", Status: 400, Err: errors.New("bad")}).Temporary() {
		t.Fatalf("400 should not be temporary")
	}
	wrapped := &GatewayError{Op: "get", Status: 404, Err: ErrNotFound}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("expected errors.Is to see ErrNotFound")
	}
}
