package memstore

import (
	"bytes"
	"cmp"
	"slices"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/jacentio/bomberhub/store"
)

// normalize copies a packed value into its stored form. Integers become
// int64 and floats float64, as the production store returns them.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
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
	case []byte:
		return append([]byte(nil), x...)
	case time.Time:
		return timestamppb.New(x)
	case *timestamppb.Timestamp:
		if x == nil {
			return nil
		}
		return timestamppb.New(x.AsTime())
	case *latlng.LatLng:
		if x == nil {
			return nil
		}
		return &latlng.LatLng{Latitude: x.GetLatitude(), Longitude: x.GetLongitude()}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	}
	return store.Pack(v)
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return normalize(data).(map[string]any)
}

// type ranks follow the production store's cross-type ordering.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTimestamp
	rankString
	rankBytes
	rankGeoPoint
	rankArray
	rankMap
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int64, float64:
		return rankNumber
	case *timestamppb.Timestamp:
		return rankTimestamp
	case string:
		return rankString
	case []byte:
		return rankBytes
	case *latlng.LatLng:
		return rankGeoPoint
	case []any:
		return rankArray
	}
	return rankMap
}

func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
		return cmp.Compare(float64(x), b.(float64))
	case float64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, float64(y))
		}
		return cmp.Compare(x, b.(float64))
	case *timestamppb.Timestamp:
		return x.AsTime().Compare(b.(*timestamppb.Timestamp).AsTime())
	case string:
		return strings.Compare(x, b.(string))
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case *latlng.LatLng:
		y := b.(*latlng.LatLng)
		if c := cmp.Compare(x.GetLatitude(), y.GetLatitude()); c != 0 {
			return c
		}
		return cmp.Compare(x.GetLongitude(), y.GetLongitude())
	case []any:
		y := b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compareValues(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(x), len(y))
	case map[string]any:
		y := b.(map[string]any)
		xk, yk := sortedKeys(x), sortedKeys(y)
		for i := 0; i < len(xk) && i < len(yk); i++ {
			if c := strings.Compare(xk[i], yk[i]); c != 0 {
				return c
			}
			if c := compareValues(x[xk[i]], y[yk[i]]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(xk), len(yk))
	}
	return 0
}

func equalValues(a, b any) bool {
	return rank(a) == rank(b) && compareValues(a, b) == 0
}

// lookup returns the value at a dotted field path.
func lookup(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign sets the value at a dotted field path, creating intermediate maps.
// A Delete sentinel removes the field.
func assign(data map[string]any, path string, v any, now time.Time) {
	parts := strings.Split(path, ".")
	m := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	setLeaf(m, parts[len(parts)-1], v, now)
}

func setLeaf(m map[string]any, key string, v any, now time.Time) {
	s, ok := v.(store.Sentinel)
	if !ok {
		m[key] = normalize(v)
		return
	}
	if s.Kind == store.SentinelDelete {
		delete(m, key)
		return
	}
	old, exists := m[key]
	m[key] = transform(s, old, exists, now)
}

func transform(s store.Sentinel, old any, exists bool, now time.Time) any {
	switch s.Kind {
	case store.SentinelServerTimestamp:
		return timestamppb.New(now)
	case store.SentinelIncrement:
		delta := normalize(s.Delta)
		if !exists || rank(old) != rankNumber {
			return delta
		}
		if x, ok := old.(int64); ok {
			if d, ok := delta.(int64); ok {
				return x + d
			}
			return float64(x) + delta.(float64)
		}
		if d, ok := delta.(int64); ok {
			return old.(float64) + float64(d)
		}
		return old.(float64) + delta.(float64)
	case store.SentinelArrayUnion:
		arr, _ := old.([]any)
		out := append([]any(nil), arr...)
		for _, e := range s.Elements {
			e = normalize(e)
			if !containsValue(out, e) {
				out = append(out, e)
			}
		}
		return out
	case store.SentinelArrayRemove:
		arr, _ := old.([]any)
		remove := make([]any, len(s.Elements))
		for i, e := range s.Elements {
			remove[i] = normalize(e)
		}
		out := make([]any, 0, len(arr))
		for _, e := range arr {
			if !containsValue(remove, e) {
				out = append(out, e)
			}
		}
		return out
	}
	return nil
}

func containsValue(values []any, v any) bool {
	for _, e := range values {
		if equalValues(e, v) {
			return true
		}
	}
	return false
}

// merge deep merges src into dst, applying sentinels.
func merge(dst, src map[string]any, now time.Time) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				merge(existing, sub, now)
				continue
			}
			fresh := map[string]any{}
			merge(fresh, sub, now)
			dst[k] = fresh
			continue
		}
		setLeaf(dst, k, v, now)
	}
}

// replace builds a document from data, applying sentinels.
func replace(data map[string]any, now time.Time) map[string]any {
	out := map[string]any{}
	merge(out, data, now)
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
