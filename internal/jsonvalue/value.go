// Package jsonvalue models parsed JSON documents as a closed sum type.
//
// A Value is exactly one of Null, Bool, Number, String, Array or Object.
// Consumers are expected to switch over the concrete type; there is no other
// implementation of the interface outside this package.
package jsonvalue

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Kind is the JSON tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Boolean"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable JSON value.
type Value interface {
	Kind() Kind
	json.Marshaler

	sealed()
}

// Null is the JSON null literal.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number kept as the literal text it was parsed from.
type Number string

// String is a JSON string.
type String string

// Array is an ordered sequence of values.
type Array []Value

// Object maps member names to values. Member order is irrelevant.
type Object map[string]Value

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) sealed()   {}
func (Bool) sealed()   {}
func (Number) sealed() {}
func (String) sealed() {}
func (Array) sealed()  {}
func (Object) sealed() {}

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (b Bool) MarshalJSON() ([]byte, error) { return []byte(strconv.FormatBool(bool(b))), nil }

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

func (a Array) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(a))
}

func (o Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(o))
}

// Keys returns the member names of o in ascending order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode renders v as compact JSON. A nil Value renders as null.
func Encode(v Value) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "<unencodable: " + err.Error() + ">"
	}
	return string(b)
}
