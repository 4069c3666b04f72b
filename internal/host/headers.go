package host

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrInvalidHeader is returned when a header name or value is rejected.
var ErrInvalidHeader = errors.New("invalid header")

type field struct {
	name  string // lowercased
	value string
}

// Headers is the host's header multimap. Names are stored lowercased.
//
// Iteration follows fetch semantics: names are visited in sorted order and
// repeated values of one name are reported once, comma-joined. set-cookie is
// the exception and is reported once per value.
type Headers struct {
	fields []field
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{}
}

func normalize(name, value string) (string, string, error) {
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
	}
	value = strings.Trim(value, " \t")
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", fmt.Errorf("%w: value for %q", ErrInvalidHeader, name)
	}
	return strings.ToLower(name), value, nil
}

// Append adds value under name, keeping existing values.
func (h *Headers) Append(name, value string) error {
	n, v, err := normalize(name, value)
	if err != nil {
		return err
	}
	h.fields = append(h.fields, field{name: n, value: v})
	return nil
}

// Set replaces every value of name with value. Last write wins.
func (h *Headers) Set(name, value string) error {
	n, v, err := normalize(name, value)
	if err != nil {
		return err
	}
	h.fields = slices.DeleteFunc(h.fields, func(f field) bool { return f.name == n })
	h.fields = append(h.fields, field{name: n, value: v})
	return nil
}

// Delete removes every value of name.
func (h *Headers) Delete(name string) {
	n := strings.ToLower(name)
	h.fields = slices.DeleteFunc(h.fields, func(f field) bool { return f.name == n })
}

// Values returns every value stored under name in insertion order.
func (h *Headers) Values(name string) []string {
	n := strings.ToLower(name)
	var out []string
	for _, f := range h.fields {
		if f.name == n {
			out = append(out, f.value)
		}
	}
	return out
}

// Get returns the comma-joined values of name.
func (h *Headers) Get(name string) (string, bool) {
	vals := h.Values(name)
	if len(vals) == 0 {
		return "", false
	}
	return strings.Join(vals, ", "), true
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	n := strings.ToLower(name)
	return slices.ContainsFunc(h.fields, func(f field) bool { return f.name == n })
}

// Len returns the number of stored name/value pairs.
func (h *Headers) Len() int {
	return len(h.fields)
}

// All yields the header pairs as the host reports them.
func (h *Headers) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		names := make([]string, 0, len(h.fields))
		for _, f := range h.fields {
			if !slices.Contains(names, f.name) {
				names = append(names, f.name)
			}
		}
		slices.Sort(names)

		for _, n := range names {
			vals := h.Values(n)
			if n == "set-cookie" {
				for _, v := range vals {
					if !yield(n, v) {
						return
					}
				}
				continue
			}
			if !yield(n, strings.Join(vals, ", ")) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (h *Headers) Clone() *Headers {
	return &Headers{fields: slices.Clone(h.fields)}
}
