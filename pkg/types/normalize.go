package types

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Normalize recursively converts a value produced by an external ML
// extractor into plain JSON-native Go types: bool, int64, float64, string,
// []interface{} and map[string]interface{}. Narrow numeric types (float32,
// the sized ints, json.Number) and typed slices such as []float32 are
// widened so the result always survives encoding/json without loss of
// numeric value.
//
// Values that are neither scalar, sequence nor mapping are stringified;
// the store never round-trips opaque types.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []float32:
		out := make([]interface{}, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	case []float64:
		out := make([]interface{}, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = Normalize(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = Normalize(item)
		}
		return out
	default:
		return normalizeReflect(v)
	}
}

// normalizeReflect handles the long tail of typed sequences and mappings
// (e.g. []int16, map[string]float32) that the fast-path switch misses.
func normalizeReflect(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Sprint(v)
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	default:
		// Opaque value, stringify
		return fmt.Sprint(v)
	}
}

// NormalizeMap normalizes every value of a result-data mapping in place of
// a new map. A nil input yields a nil map.
func NormalizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out, _ := Normalize(m).(map[string]interface{})
	return out
}
