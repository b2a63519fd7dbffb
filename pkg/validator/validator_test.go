package validator

import "testing"

type sample struct {
	Name  string   `json:"name" validate:"required,max=5"`
	Kind  string   `json:"kind" validate:"omitempty,oneof=a b"`
	Items []string `json:"items" validate:"min=1"`
}

func TestStruct(t *testing.T) {
	if err := Struct(sample{Name: "ok", Items: []string{"x"}}); err != nil {
		t.Fatalf("valid struct: %v", err)
	}

	err := Struct(sample{Name: "toolong", Kind: "c"})
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("err = %T, want ValidationErrors", err)
	}

	want := map[string]string{
		"name":  "must be at most 5 characters",
		"kind":  "must be one of: a b",
		"items": "must contain at least 1 items",
	}
	if len(verrs) != len(want) {
		t.Fatalf("got %d errors, want %d: %v", len(verrs), len(want), verrs)
	}
	for _, e := range verrs {
		if want[e.Field] != e.Message {
			t.Errorf("%s: message = %q, want %q", e.Field, e.Message, want[e.Field])
		}
	}
	if !IsValidation(err) {
		t.Fatal("IsValidation = false")
	}
}

func TestStruct_MaxCountsRunes(t *testing.T) {
	// Six bytes, five runes.
	if err := Struct(sample{Name: "héllo", Items: []string{"x"}}); err != nil {
		t.Fatalf("five runes rejected: %v", err)
	}
	if err := Struct(sample{Name: "héllos", Items: []string{"x"}}); !IsValidation(err) {
		t.Fatalf("six runes accepted: %v", err)
	}
}
