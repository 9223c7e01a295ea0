package jsonvalue

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned by Parse when the input is not a single JSON document.
var ErrInvalidJSON = errors.New("invalid JSON document")

// Parse decodes data into a Value.
// Duplicate object members keep the last occurrence.
func Parse(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null{}
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(strings.TrimSpace(r.Raw))
	case gjson.String:
		return String(r.Str)
	}

	if r.IsArray() {
		arr := make(Array, 0)
		r.ForEach(func(_, v gjson.Result) bool {
			arr = append(arr, fromResult(v))
			return true
		})
		return arr
	}

	obj := make(Object)
	r.ForEach(func(k, v gjson.Result) bool {
		obj[k.Str] = fromResult(v)
		return true
	})
	return obj
}

// FromAny converts a decoded Go value (as produced by encoding/json or a YAML
// decoder) into a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case int:
		return Number(strconv.Itoa(t)), nil
	case int32:
		return Number(strconv.FormatInt(int64(t), 10)), nil
	case int64:
		return Number(strconv.FormatInt(t, 10)), nil
	case uint:
		return Number(strconv.FormatUint(uint64(t), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(t, 10)), nil
	case float32:
		return floatNumber(float64(t))
	case float64:
		return floatNumber(t)
	case []any:
		arr := make(Array, 0, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr = append(arr, ev)
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string object key %v", k)
			}
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", ks, err)
			}
			obj[ks] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func floatNumber(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("number %v has no JSON representation", f)
	}
	return Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
}
