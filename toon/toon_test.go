package toon

import (
	"strings"
	"testing"
)

func TestEncodeScalars(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "null"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"plain string", "스마트폰", "스마트폰"},
		{"string with comma", "a,b", `"a,b"`},
		{"string with colon", "k: v", `"k: v"`},
		{"string with quote", `say "hi"`, `"say \"hi\""`},
		{"string with newline", "a\nb", "\"a\nb\""},
		{"string with apostrophe", "it's", `"it's"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.value); got != tt.want {
				t.Errorf("Encode(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestEncodePrimitiveList(t *testing.T) {
	got := Encode([]any{"a", "b", 3})
	want := "[3]: a,b,3"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
	if got := Encode([]any{}); got != "[]" {
		t.Errorf("empty list = %q, want []", got)
	}
}

func TestEncodeUniformObjectList(t *testing.T) {
	value := []any{
		map[string]any{"name": "kim", "age": 3},
		map[string]any{"name": "lee", "age": 5},
	}
	got := Encode(value)
	want := "[2]{age,name}:\n 3,kim\n 5,lee"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestEncodeMixedList(t *testing.T) {
	got := Encode([]any{"a", map[string]any{"k": "v"}})
	lines := strings.Split(got, "\n")
	if lines[0] != "[2]:" {
		t.Errorf("header = %q, want [2]:", lines[0])
	}
	if lines[1] != " - a" {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestEncodeMap(t *testing.T) {
	got := Encode(map[string]any{
		"b":      1,
		"a":      "x",
		"nested": map[string]any{"k": "v"},
	})
	want := "a: x\nb: 1\nnested:\n  k: v"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
	if got := Encode(map[string]any{}); got != "{}" {
		t.Errorf("empty map = %q, want {}", got)
	}
}

func TestEncodeMapWithTable(t *testing.T) {
	got := Encode(map[string]any{
		"rows": []any{
			map[string]any{"x": 1, "y": 2},
			map[string]any{"x": 3, "y": 4},
		},
	})
	want := "rows[2]{x,y}:\n  1,2\n  3,4"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestEncodeSecret(t *testing.T) {
	got := EncodeSecret("스마트폰", "사물", nil)
	want := "target: 스마트폰\ncategory: 사물"
	if got != want {
		t.Errorf("EncodeSecret = %q, want %q", got, want)
	}

	withDetails := EncodeSecret("기차", "탈것", map[string]any{"speed": "fast"})
	if !strings.HasPrefix(withDetails, "target: 기차\ncategory: 탈것\ndetails:\n") {
		t.Errorf("EncodeSecret with details = %q", withDetails)
	}
	if !strings.Contains(withDetails, "speed: fast") {
		t.Errorf("details body missing: %q", withDetails)
	}
}

func TestEncodePuzzle(t *testing.T) {
	got := EncodePuzzle("바다 한가운데", "그는 거북이 수프를 알아봤다", "", nil)
	want := "scenario: 바다 한가운데\nsolution: 그는 거북이 수프를 알아봤다"
	if got != want {
		t.Errorf("EncodePuzzle = %q, want %q", got, want)
	}

	diff := 3
	full := EncodePuzzle("s", "a", "MYSTERY", &diff)
	if !strings.HasSuffix(full, "category: MYSTERY\ndifficulty: 3") {
		t.Errorf("EncodePuzzle full = %q", full)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	value := map[string]any{"z": 1, "a": 2, "m": []any{1, 2, 3}}
	first := Encode(value)
	for range 10 {
		if got := Encode(value); got != first {
			t.Fatalf("non-deterministic output: %q vs %q", got, first)
		}
	}
}
