package store

import (
	"reflect"
	"time"

	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type unset struct{}

// Unset marks a field that must be left out of a write. Unlike nil, which
// overwrites the stored field with null, an Unset field keeps its stored value.
var Unset any = unset{}

// GeoPoint is a latitude/longitude pair. It is stored as a native geo point.
type GeoPoint struct {
	Latitude  float64 `doc:"latitude"`
	Longitude float64 `doc:"longitude"`
}

// Pack converts a Go value into the value written to the store.
//
// Scalars and nil pass through. Times become timestamps, GeoPoints and maps
// holding exactly "latitude" and "longitude" become geo points, sentinels are
// kept as they are, and slices, maps and structs are packed recursively.
// Struct fields are named by their doc tags. Entries set to Unset are
// dropped.
func Pack(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case unset:
		return nil
	case Sentinel, *timestamppb.Timestamp, *latlng.LatLng:
		return x
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, []byte:
		return x
	case time.Time:
		return timestamppb.New(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return timestamppb.New(*x)
	case GeoPoint:
		return &latlng.LatLng{Latitude: x.Latitude, Longitude: x.Longitude}
	case *GeoPoint:
		if x == nil {
			return nil
		}
		return &latlng.LatLng{Latitude: x.Latitude, Longitude: x.Longitude}
	case map[string]any:
		if lat, lng, ok := coordinatePair(x); ok {
			return &latlng.LatLng{Latitude: lat, Longitude: lng}
		}
		return PackMap(x)
	case []any:
		return packSlice(x)
	}
	return packReflect(reflect.ValueOf(v))
}

// PackMap packs every entry of data, omitting Unset entries.
func PackMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, skip := v.(unset); skip {
			continue
		}
		out[k] = Pack(v)
	}
	return out
}

func packSlice(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Pack(v)
	}
	return out
}

// packReflect handles named scalar types, typed slices, typed maps and
// structs.
func packReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Pack(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes()
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Pack(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return rv.Interface()
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return Pack(m)
	case reflect.Struct:
		return packStruct(rv)
	}
	return rv.Interface()
}

// packStruct packs the exported fields of a struct under their document
// names. Fields tagged "-" are skipped, as are zero omitempty fields and
// fields holding Unset.
func packStruct(rv reflect.Value) map[string]any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, opts := parseTag(sf)
		if name == "-" {
			continue
		}
		fv := rv.Field(i)
		if _, omit := opts["omitempty"]; omit && fv.IsZero() {
			continue
		}
		v := fv.Interface()
		if _, skip := v.(unset); skip {
			continue
		}
		out[name] = Pack(v)
	}
	return out
}

// coordinatePair reports whether m is exactly {latitude, longitude} with
// numeric values.
func coordinatePair(m map[string]any) (float64, float64, bool) {
	if len(m) != 2 {
		return 0, 0, false
	}
	latRaw, ok := m["latitude"]
	if !ok {
		return 0, 0, false
	}
	lngRaw, ok := m["longitude"]
	if !ok {
		return 0, 0, false
	}
	lat, ok := toFloat64(latRaw)
	if !ok {
		return 0, 0, false
	}
	lng, ok := toFloat64(lngRaw)
	if !ok {
		return 0, 0, false
	}
	return lat, lng, true
}

// Unpack converts a stored value back into a plain Go value: timestamps
// become time.Time, geo points become {latitude, longitude} maps, and slices
// and maps are unpacked recursively. Times come back in UTC; the instant is
// preserved, not the location.
func Unpack(v any) any {
	switch x := v.(type) {
	case *timestamppb.Timestamp:
		if x == nil {
			return nil
		}
		return x.AsTime()
	case *latlng.LatLng:
		if x == nil {
			return nil
		}
		return map[string]any{"latitude": x.GetLatitude(), "longitude": x.GetLongitude()}
	case map[string]any:
		return UnpackMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Unpack(e)
		}
		return out
	}
	return v
}

// UnpackMap unpacks every entry of data.
func UnpackMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = Unpack(v)
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		if float32(int64(n)) == n {
			return int64(n), true
		}
	case float64:
		if float64(int64(n)) == n {
			return int64(n), true
		}
	}
	return 0, false
}
