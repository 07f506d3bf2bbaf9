// Package structure provides the ordered, optionally-named tuple that backs
// struct values at runtime. A Struct is immutable after construction; element
// values are arbitrary runtime representations (tensors, nested structs,
// sequences, callables).
package structure

import "fmt"

// Element is one member of a Struct. Name may be empty.
type Element struct {
	Name  string
	Value any
}

// Struct is an ordered tuple of elements with optional names.
type Struct struct {
	elements []Element
}

// New builds a Struct from the given elements.
func New(elements ...Element) *Struct {
	return &Struct{elements: append([]Element(nil), elements...)}
}

// FromValues builds an unnamed Struct over vs.
func FromValues(vs ...any) *Struct {
	elements := make([]Element, len(vs))
	for i, v := range vs {
		elements[i] = Element{Value: v}
	}
	return &Struct{elements: elements}
}

func (s *Struct) Len() int { return len(s.elements) }

// At returns the value at index i.
func (s *Struct) At(i int) any { return s.elements[i].Value }

// Name returns the name of element i, empty if unnamed.
func (s *Struct) Name(i int) string { return s.elements[i].Name }

// Names returns the element names in order; unnamed slots are empty strings.
func (s *Struct) Names() []string {
	names := make([]string, len(s.elements))
	for i, e := range s.elements {
		names[i] = e.Name
	}
	return names
}

// ByName returns the first element value with the given name.
func (s *Struct) ByName(name string) (any, bool) {
	for _, e := range s.elements {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// Elements returns a copy of the element list.
func (s *Struct) Elements() []Element {
	return append([]Element(nil), s.elements...)
}

func (s *Struct) String() string {
	out := "<"
	for i, e := range s.elements {
		if i > 0 {
			out += ","
		}
		if e.Name != "" {
			out += e.Name + "="
		}
		out += fmt.Sprintf("%v", e.Value)
	}
	return out + ">"
}
