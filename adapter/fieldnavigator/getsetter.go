package fieldnavigator

import "github.com/vinicius-lino-figueiredo/shelfdb/domain"

// Item addresses position index of list. Reads outside the list report an
// undefined value and writes outside it are ignored; the list never grows.
func Item(list []any, index int) domain.GetSetter {
	return &itemSlot{list: list, index: index}
}

// Field addresses key in doc.
func Field(doc domain.Document, key string) domain.GetSetter {
	return &fieldSlot{doc: doc, key: key}
}

// Fixed wraps a value that is not part of any document. Writes are ignored.
func Fixed(v any) domain.GetSetter {
	return &fixedSlot{v: v}
}

// Missing returns an address with no value behind it. Writes are ignored.
func Missing() domain.GetSetter {
	return &missingSlot{}
}

type itemSlot struct {
	list  []any
	index int
}

func (s *itemSlot) ok() bool {
	return 0 <= s.index && s.index < len(s.list)
}

func (s *itemSlot) Get() (any, bool) {
	if !s.ok() {
		return nil, false
	}
	return s.list[s.index], true
}

func (s *itemSlot) Set(v any) {
	if s.ok() {
		s.list[s.index] = v
	}
}

// Unset leaves a null behind, so later positions keep their index.
func (s *itemSlot) Unset() { s.Set(nil) }

type fieldSlot struct {
	doc domain.Document
	key string
}

func (s *fieldSlot) Get() (any, bool) { return s.doc.Get(s.key), s.doc.Has(s.key) }

func (s *fieldSlot) Set(v any) { s.doc.Set(s.key, v) }

func (s *fieldSlot) Unset() { s.doc.Unset(s.key) }

type fixedSlot struct{ v any }

func (s *fixedSlot) Get() (any, bool) { return s.v, true }

func (*fixedSlot) Set(any) {}

func (*fixedSlot) Unset() {}

type missingSlot struct{}

func (*missingSlot) Get() (any, bool) { return nil, false }

func (*missingSlot) Set(any) {}

func (*missingSlot) Unset() {}
