// Package shape compares two JSON trees structurally.
//
// Two values have the same shape when they carry the same JSON kind and,
// recursively, objects have the same member names and arrays have the same
// length. Scalar values themselves are never compared.
package shape

import (
	"fmt"

	"github.com/snapp-incubator/conformer/internal/jsonvalue"
)

// Mismatch is the first point where two trees diverge.
// Client is the candidate side, Reference the known-good side.
type Mismatch struct {
	Endpoint  string
	Path      jsonvalue.Path
	Client    jsonvalue.Value
	Reference jsonvalue.Value
}

func (m *Mismatch) String() string {
	return fmt.Sprintf("endpoint %s at path %s: client %s %s, reference %s %s",
		m.Endpoint, m.Path,
		kindOf(m.Client), jsonvalue.Encode(m.Client),
		kindOf(m.Reference), jsonvalue.Encode(m.Reference),
	)
}

func kindOf(v jsonvalue.Value) jsonvalue.Kind {
	if v == nil {
		return jsonvalue.KindNull
	}
	return v.Kind()
}

// Compare walks a (client) and b (reference) depth first and returns the
// first divergence, or nil when both trees have the same shape.
// Object members are visited in ascending name order.
func Compare(a, b jsonvalue.Value, endpoint string, path jsonvalue.Path) *Mismatch {
	if a == nil {
		a = jsonvalue.Null{}
	}
	if b == nil {
		b = jsonvalue.Null{}
	}

	mismatch := func(p jsonvalue.Path, client, reference jsonvalue.Value) *Mismatch {
		return &Mismatch{Endpoint: endpoint, Path: p, Client: client, Reference: reference}
	}

	switch av := a.(type) {
	case jsonvalue.Object:
		bv, ok := b.(jsonvalue.Object)
		if !ok {
			return mismatch(path, a, b)
		}
		for _, k := range av.Keys() {
			bElem, exists := bv[k]
			if !exists {
				return mismatch(path.Key(k), av[k], jsonvalue.Null{})
			}
			if m := Compare(av[k], bElem, endpoint, path.Key(k)); m != nil {
				return m
			}
		}
		for _, k := range bv.Keys() {
			if _, exists := av[k]; !exists {
				return mismatch(path.Key(k), jsonvalue.Null{}, bv[k])
			}
		}
		return nil

	case jsonvalue.Array:
		bv, ok := b.(jsonvalue.Array)
		if !ok {
			return mismatch(path, a, b)
		}
		if len(av) != len(bv) {
			return mismatch(path, av, bv)
		}
		for i := range av {
			if m := Compare(av[i], bv[i], endpoint, path.Index(i)); m != nil {
				return m
			}
		}
		return nil

	case jsonvalue.Null, jsonvalue.Bool, jsonvalue.Number, jsonvalue.String:
		if a.Kind() != b.Kind() {
			return mismatch(path, a, b)
		}
		return nil

	default:
		panic(fmt.Sprintf("shape: unexpected value type %T", a))
	}
}
