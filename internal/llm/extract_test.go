package llm

import "testing"

func TestExtractJSONPlainObject(t *testing.T) {
	raw := `{"a":1}`
	if got := ExtractJSON(raw); got != raw {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONCodeFence(t *testing.T) {
	raw := "```json\n{\"a\":1}\n```"
	if got := ExtractJSON(raw); got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	raw := "Sure thing.\n[{\"price\":2400}]\nHope that helps."
	if got := ExtractJSON(raw); got != `[{"price":2400}]` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	s := `prefix {"a":{"b":"}"},"c":1} suffix`
	want := `{"a":{"b":"}"},"c":1}`
	if got := ExtractJSON(s); got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestExtractJSONNone(t *testing.T) {
	if got := ExtractJSON("no structured data here"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestSanitizeJSONEscapes(t *testing.T) {
	in := `{"note":"covers 90\% of cases","ok":"line\nbreak"}`
	want := `{"note":"covers 90% of cases","ok":"line\nbreak"}`
	if got := SanitizeJSONEscapes(in); got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
