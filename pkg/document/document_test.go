package document

import (
	"encoding/json"
	"testing"
)

func TestParse_PreservesFieldOrder(t *testing.T) {
	doc, err := Parse([]byte(`{"zeta": 1, "alpha": "a", "mid": null}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"zeta", "alpha", "mid"}
	got := doc.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMarshalJSON_CompactSingleLine(t *testing.T) {
	input := `{
		"id": "01abc",
		"tags": { "a": [1, 2] },
		"title": "Hello"
	}`
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"id":"01abc","tags":{"a":[1,2]},"title":"Hello"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestMarshalJSON_RoundTripIsStable(t *testing.T) {
	first, err := Parse([]byte(`{"b":2,"a":[true,false],"c":{"x":"y"}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	line1, _ := json.Marshal(first)

	second, err := Parse(line1)
	if err != nil {
		t.Fatalf("Parse() second error = %v", err)
	}
	line2, _ := json.Marshal(second)

	if string(line1) != string(line2) {
		t.Errorf("re-encoded line differs: %s vs %s", line1, line2)
	}
}

func TestParse_RejectsNonObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "array", input: `[1,2]`},
		{name: "string", input: `"doc"`},
		{name: "truncated", input: `{"a":`},
		{name: "empty", input: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.input)); err == nil {
				t.Errorf("Parse(%q) expected error", tt.input)
			}
		})
	}
}

func TestText(t *testing.T) {
	doc, err := Parse([]byte(`{"s":"plain","n":42,"f":1.5,"b":true,"z":null,"o":{"k":"v"},"l":["x"]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{key: "s", want: "plain"},
		{key: "n", want: "42"},
		{key: "f", want: "1.5"},
		{key: "b", want: "true"},
		{key: "z", want: ""},
		{key: "o", want: `{"k":"v"}`},
		{key: "l", want: `["x"]`},
		{key: "missing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := doc.Text(tt.key); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	doc, err := New(Field{Name: "id", Value: "1"}, Field{Name: "count", Value: 3})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data, _ := json.Marshal(doc)
	if string(data) != `{"id":"1","count":3}` {
		t.Errorf("Marshal(New()) = %s", data)
	}
}

func TestParse_DuplicateKeyKeepsFirstPosition(t *testing.T) {
	doc, err := Parse([]byte(`{"a":1,"b":2,"a":3}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", doc.Len())
	}
	if doc.Text("a") != "3" {
		t.Errorf("Text(a) = %s, want 3", doc.Text("a"))
	}
}
