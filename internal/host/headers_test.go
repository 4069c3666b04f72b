package host

import (
	"errors"
	"slices"
	"testing"
)

type pair struct{ name, value string }

func collect(h *Headers) []pair {
	var out []pair
	for n, v := range h.All() {
		out = append(out, pair{n, v})
	}
	return out
}

func TestHeaders_AppendAndAll(t *testing.T) {
	h := NewHeaders()
	for _, p := range []pair{
		{"X-B", "2"},
		{"Content-Type", "text/html"},
		{"x-b", "3"},
		{"Set-Cookie", "a=1"},
		{"Set-Cookie", "b=2"},
	} {
		if err := h.Append(p.name, p.value); err != nil {
			t.Fatalf("Append(%q): %v", p.name, err)
		}
	}

	got := collect(h)
	want := []pair{
		{"content-type", "text/html"},
		{"set-cookie", "a=1"},
		{"set-cookie", "b=2"},
		{"x-b", "2, 3"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
	if h.Len() != 5 {
		t.Errorf("Len() = %d, want 5", h.Len())
	}
}

func TestHeaders_SetLastWriteWins(t *testing.T) {
	h := NewHeaders()
	_ = h.Append("Vary", "Accept")
	_ = h.Append("Vary", "Origin")
	if err := h.Set("vary", "Cookie"); err != nil {
		t.Fatal(err)
	}

	if got := h.Values("VARY"); !slices.Equal(got, []string{"Cookie"}) {
		t.Errorf("Values() = %v, want [Cookie]", got)
	}
}

func TestHeaders_GetHasDelete(t *testing.T) {
	h := NewHeaders()
	_ = h.Append("Accept", "text/html")
	_ = h.Append("Accept", "application/json")

	if v, ok := h.Get("accept"); !ok || v != "text/html, application/json" {
		t.Errorf("Get() = %q, %v", v, ok)
	}
	if !h.Has("ACCEPT") {
		t.Error("Has() = false, want true")
	}

	h.Delete("Accept")
	if h.Has("accept") {
		t.Error("Has() after Delete = true")
	}
	if _, ok := h.Get("accept"); ok {
		t.Error("Get() after Delete reported present")
	}
}

func TestHeaders_TrimsValues(t *testing.T) {
	h := NewHeaders()
	_ = h.Append("X-Pad", " \tv \t")
	if v, _ := h.Get("x-pad"); v != "v" {
		t.Errorf("Get() = %q, want %q", v, "v")
	}
}

func TestHeaders_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"space in name", "bad name", "v"},
		{"empty name", "", "v"},
		{"newline in value", "X-Ok", "a\nb"},
		{"nul in value", "X-Ok", "a\x00b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeaders()
			if err := h.Append(tt.key, tt.value); !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("Append() error = %v, want ErrInvalidHeader", err)
			}
			if err := h.Set(tt.key, tt.value); !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("Set() error = %v, want ErrInvalidHeader", err)
			}
			if h.Len() != 0 {
				t.Errorf("Len() = %d after rejected writes", h.Len())
			}
		})
	}
}

func TestHeaders_Clone(t *testing.T) {
	h := NewHeaders()
	_ = h.Append("A", "1")
	c := h.Clone()
	_ = c.Append("B", "2")

	if h.Has("b") {
		t.Error("mutating the clone changed the original")
	}
}

func TestHeaders_AllStopsEarly(t *testing.T) {
	h := NewHeaders()
	_ = h.Append("A", "1")
	_ = h.Append("B", "2")

	n := 0
	for range h.All() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterations = %d, want 1", n)
	}
}
