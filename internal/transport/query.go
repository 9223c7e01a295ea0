package transport

import (
	"fmt"
	"net/url"

	"github.com/snapp-incubator/conformer/internal/jsonvalue"
)

// EncodeQuery renders a flat JSON object as a URL query string.
// Members are encoded in ascending name order and null members are omitted.
// Anything other than an object of scalars cannot be encoded.
func EncodeQuery(body jsonvalue.Value) (string, error) {
	obj, ok := body.(jsonvalue.Object)
	if !ok {
		return "", fmt.Errorf("query parameters must be an Object, got %s", body.Kind())
	}

	values := url.Values{}
	for _, k := range obj.Keys() {
		switch v := obj[k].(type) {
		case jsonvalue.Null:
		case jsonvalue.String:
			values.Set(k, string(v))
		case jsonvalue.Number, jsonvalue.Bool:
			values.Set(k, jsonvalue.Encode(v))
		case jsonvalue.Array, jsonvalue.Object:
			return "", fmt.Errorf("query parameter %q is an %s; only scalars can be encoded", k, v.Kind())
		}
	}

	return values.Encode(), nil
}
