package types

import (
	"fmt"
	"reflect"
)

// ToVector coerces an arbitrary numeric sequence into a flat []float32.
// Nested sequences are flattened, matching the behavior of extractors that
// return a batch axis of size one. Non-numeric elements fail with
// ErrNotAVector; an empty result fails with ErrEmptyVector.
func ToVector(v interface{}) ([]float32, error) {
	out := make([]float32, 0, 128)
	out, err := appendVector(out, v)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyVector
	}
	return out, nil
}

func appendVector(dst []float32, v interface{}) ([]float32, error) {
	switch x := v.(type) {
	case []float32:
		return append(dst, x...), nil
	case []float64:
		for _, f := range x {
			dst = append(dst, float32(f))
		}
		return dst, nil
	case float32:
		return append(dst, x), nil
	case float64:
		return append(dst, float32(x)), nil
	case int:
		return append(dst, float32(x)), nil
	case int64:
		return append(dst, float32(x)), nil
	case []interface{}:
		var err error
		for _, item := range x {
			dst, err = appendVector(dst, item)
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			var err error
			for i := 0; i < rv.Len(); i++ {
				dst, err = appendVector(dst, rv.Index(i).Interface())
				if err != nil {
					return nil, err
				}
			}
			return dst, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return append(dst, float32(rv.Int())), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return append(dst, float32(rv.Uint())), nil
		case reflect.Float32, reflect.Float64:
			return append(dst, float32(rv.Float())), nil
		default:
			return nil, fmt.Errorf("%w: element of type %T", ErrNotAVector, v)
		}
	}
}
