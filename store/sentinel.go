package store

import "fmt"

// SentinelKind tags a store-native field transform.
type SentinelKind int

const (
	SentinelDelete SentinelKind = iota + 1
	SentinelIncrement
	SentinelArrayUnion
	SentinelArrayRemove
	SentinelServerTimestamp
)

func (k SentinelKind) String() string {
	switch k {
	case SentinelDelete:
		return "delete"
	case SentinelIncrement:
		return "increment"
	case SentinelArrayUnion:
		return "arrayUnion"
	case SentinelArrayRemove:
		return "arrayRemove"
	case SentinelServerTimestamp:
		return "serverTimestamp"
	}
	return fmt.Sprintf("SentinelKind(%d)", int(k))
}

// Sentinel is a field value that the store interprets instead of storing:
// delete the field, increment it, or add/remove array elements. Pack leaves
// sentinels untouched.
type Sentinel struct {
	Kind SentinelKind

	// Delta is the increment amount, an int64 or a float64.
	Delta any

	// Elements are the packed operands of ArrayUnion and ArrayRemove.
	Elements []any
}

// Number is the set of types accepted by Increment.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// DeleteField removes the field it is assigned to.
func DeleteField() Sentinel {
	return Sentinel{Kind: SentinelDelete}
}

// Increment adds n to the stored numeric field.
func Increment[N Number](n N) Sentinel {
	switch v := any(n).(type) {
	case float32:
		return Sentinel{Kind: SentinelIncrement, Delta: float64(v)}
	case float64:
		return Sentinel{Kind: SentinelIncrement, Delta: v}
	}
	if f := float64(n); f != float64(int64(f)) {
		return Sentinel{Kind: SentinelIncrement, Delta: f}
	}
	return Sentinel{Kind: SentinelIncrement, Delta: int64(n)}
}

// ArrayUnion adds elements missing from the stored array.
func ArrayUnion(elements ...any) Sentinel {
	return Sentinel{Kind: SentinelArrayUnion, Elements: packSlice(elements)}
}

// ArrayRemove removes every occurrence of elements from the stored array.
func ArrayRemove(elements ...any) Sentinel {
	return Sentinel{Kind: SentinelArrayRemove, Elements: packSlice(elements)}
}

// ServerTimestamp sets the field to the commit time.
func ServerTimestamp() Sentinel {
	return Sentinel{Kind: SentinelServerTimestamp}
}

// IsSentinel reports whether v is a store-native sentinel.
func IsSentinel(v any) bool {
	_, ok := v.(Sentinel)
	return ok
}
