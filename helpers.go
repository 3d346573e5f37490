package zorm

import (
	"fmt"
	"reflect"
	"strconv"
)

// IDKey normalizes an identifier value so that ids of different numeric
// types, or numbers sent as strings, share one map key.
func IDKey(v any) string {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "<nil>"
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "<nil>"
	}

	switch {
	case isInteger(rv.Kind()):
		return strconv.FormatInt(rv.Int(), 10)
	case isUint(rv.Kind()):
		return strconv.FormatUint(rv.Uint(), 10)
	case isFloat(rv.Kind()):
		f := rv.Float()
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		return string(rv.Bytes())
	}
	return fmt.Sprint(rv.Interface())
}

func isInteger(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
